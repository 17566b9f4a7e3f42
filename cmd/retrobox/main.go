// Package main provides the retrobox CLI entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/ryanh/retrobox/internal/app/library"
	"github.com/ryanh/retrobox/internal/app/player"
	"github.com/ryanh/retrobox/internal/domain/track"
	"github.com/ryanh/retrobox/internal/infra/audio"
	"github.com/ryanh/retrobox/internal/infra/config"
	"github.com/ryanh/retrobox/internal/infra/logger"
	"github.com/ryanh/retrobox/internal/infra/nowplaying"
	"github.com/ryanh/retrobox/internal/infra/repo"
	"github.com/ryanh/retrobox/internal/infra/resolver"
	"github.com/ryanh/retrobox/internal/infra/store"
)

var (
	app        = kingpin.New("retrobox", "Local audio library manager and player")
	configPath = app.Flag("config", "Config file path").Default("retrobox.yaml").Envar("RETROBOX_CONFIG").String()

	// import command
	importCmd     = app.Command("import", "Import an audio file into the library")
	importSource  = importCmd.Arg("source", "Local path or provider reference (e.g. sync://song.mp3)").Required().String()
	importTitle   = importCmd.Flag("title", "Track title (defaults to embedded metadata)").String()
	importArtist  = importCmd.Flag("artist", "Artist name").String()
	importAlbum   = importCmd.Flag("album", "Album name").String()
	importTags    = importCmd.Flag("tag", "Tag to attach (repeatable)").Strings()
	importArtwork = importCmd.Flag("artwork", "Artwork file to attach").String()

	// list command
	listCmd = app.Command("list", "List all tracks").Alias("ls")

	// show command
	showCmd = app.Command("show", "Show one track")
	showID  = showCmd.Arg("id", "Track ID (UUID)").Required().String()

	// update command
	updateCmd        = app.Command("update", "Update track metadata")
	updateID         = updateCmd.Arg("id", "Track ID (UUID)").Required().String()
	updateTitleSet   bool
	updateTitle      = updateCmd.Flag("title", "New title (empty is ignored)").IsSetByUser(&updateTitleSet).String()
	updateArtistSet  bool
	updateArtist     = updateCmd.Flag("artist", "New artist (empty resets to Unknown)").IsSetByUser(&updateArtistSet).String()
	updateAlbumSet   bool
	updateAlbum      = updateCmd.Flag("album", "New album (empty resets to Unknown)").IsSetByUser(&updateAlbumSet).String()
	updateTagsSet    bool
	updateTags       = updateCmd.Flag("tag", "Replacement tag set (repeatable)").IsSetByUser(&updateTagsSet).Strings()
	updateClearTags  = updateCmd.Flag("clear-tags", "Remove all tags").Bool()
	updateArtworkSet bool
	updateArtwork    = updateCmd.Flag("artwork", "Replacement artwork file").IsSetByUser(&updateArtworkSet).String()

	// delete command
	deleteCmd = app.Command("delete", "Delete a track").Alias("rm")
	deleteID  = deleteCmd.Arg("id", "Track ID (UUID)").Required().String()

	// tags command
	tagsCmd = app.Command("tags", "List all tags")

	// prune-tags command
	pruneCmd = app.Command("prune-tags", "Delete tags no track references")

	// play command
	playCmd   = app.Command("play", "Play the library through MPD")
	playStart = playCmd.Flag("start", "Queue position to start at (0-based)").Default("0").Int()
	playIDs   = playCmd.Arg("id", "Track IDs to queue (default: whole library)").Strings()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	if err := logger.Init(logger.Config{
		Output: cfg.Logger.Output,
		Level:  cfg.Logger.Level,
		File:   cfg.Logger.File,
	}); err != nil {
		fatal(err)
	}

	st := store.New(cfg.Library.Root)

	specs := lo.Map(cfg.Resolver.Providers, func(p config.ProviderConfig, _ int) resolver.ProviderSpec {
		return resolver.ProviderSpec{Type: p.Type, Name: p.Name, Settings: p.Settings}
	})
	providers, err := resolver.NewProvidersFromSpecs(specs)
	if err != nil {
		fatal(err)
	}
	res := resolver.New(providers, cfg.PollInterval(), cfg.ResolveTimeout())

	db, err := repo.Open(cfg.Repo.Path)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	mgr := library.NewManager(db, st, res)
	ctx := context.Background()

	switch command {
	case importCmd.FullCommand():
		runImport(ctx, mgr)
	case listCmd.FullCommand():
		runList(ctx, mgr)
	case showCmd.FullCommand():
		runShow(ctx, mgr)
	case updateCmd.FullCommand():
		runUpdate(ctx, mgr)
	case deleteCmd.FullCommand():
		runDelete(ctx, mgr)
	case tagsCmd.FullCommand():
		runTags(ctx, mgr)
	case pruneCmd.FullCommand():
		runPrune(ctx, mgr)
	case playCmd.FullCommand():
		runPlay(ctx, cfg, mgr)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func parseTrackID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		fatal(err)
	}
	return id
}

func runImport(ctx context.Context, mgr *library.Manager) {
	trk, err := mgr.Import(ctx, library.ImportRequest{
		Source:        *importSource,
		Title:         *importTitle,
		Artist:        *importArtist,
		Album:         *importAlbum,
		TagNames:      *importTags,
		ArtworkSource: *importArtwork,
	})
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Imported #%d %s (%s)\n", trk.DownloadIndex, trk.Title, trk.ID)
}

func runList(ctx context.Context, mgr *library.Manager) {
	tracks, err := mgr.List(ctx)
	if err != nil {
		fatal(err)
	}
	if len(tracks) == 0 {
		fmt.Println("Library is empty")
		return
	}
	for _, trk := range tracks {
		fmt.Printf("%4d  %s  %-30s  %-20s  %s\n",
			trk.DownloadIndex, trk.ID, trk.Title, trk.Artist, trk.FormattedDuration())
	}
}

func runShow(ctx context.Context, mgr *library.Manager) {
	trk, err := mgr.Get(ctx, parseTrackID(*showID))
	if err != nil {
		fatal(err)
	}
	tags, err := mgr.Tags(ctx)
	if err != nil {
		fatal(err)
	}
	names := lo.FilterMap(tags, func(tg track.Tag, _ int) (string, bool) {
		return tg.Name, trk.HasTag(tg.ID)
	})

	fmt.Printf("ID:       %s\n", trk.ID)
	fmt.Printf("Title:    %s\n", trk.Title)
	fmt.Printf("Artist:   %s\n", trk.Artist)
	fmt.Printf("Album:    %s\n", trk.Album)
	fmt.Printf("Index:    %d\n", trk.DownloadIndex)
	fmt.Printf("Added:    %s\n", trk.DateAdded.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration: %s\n", trk.FormattedDuration())
	fmt.Printf("File:     %s\n", mgr.AudioPath(trk))
	if trk.ArtworkPath != "" {
		fmt.Printf("Artwork:  %s\n", mgr.ArtworkPath(trk))
	}
	fmt.Printf("Tags:     %s\n", strings.Join(names, ", "))
}

func runUpdate(ctx context.Context, mgr *library.Manager) {
	var req library.UpdateRequest
	if updateTitleSet {
		req.Title = updateTitle
	}
	if updateArtistSet {
		req.Artist = updateArtist
	}
	if updateAlbumSet {
		req.Album = updateAlbum
	}
	if updateTagsSet {
		req.TagNames = updateTags
	}
	if *updateClearTags {
		empty := []string{}
		req.TagNames = &empty
	}
	if updateArtworkSet {
		req.NewArtworkSource = updateArtwork
	}

	trk, err := mgr.Update(ctx, parseTrackID(*updateID), req)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Updated %s (%s)\n", trk.Title, trk.ID)
}

func runDelete(ctx context.Context, mgr *library.Manager) {
	id := parseTrackID(*deleteID)
	if err := mgr.Delete(ctx, id); err != nil {
		fatal(err)
	}
	fmt.Printf("Deleted %s\n", id)
}

func runTags(ctx context.Context, mgr *library.Manager) {
	tags, err := mgr.Tags(ctx)
	if err != nil {
		fatal(err)
	}
	if len(tags) == 0 {
		fmt.Println("No tags")
		return
	}
	for _, tg := range tags {
		fmt.Printf("%4d  %s\n", tg.ID, tg.Name)
	}
}

func runPrune(ctx context.Context, mgr *library.Manager) {
	removed, err := mgr.PruneUnusedTags(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Removed %d unused tag(s)\n", removed)
}

func runPlay(ctx context.Context, cfg *config.Config, mgr *library.Manager) {
	tracks, err := mgr.List(ctx)
	if err != nil {
		fatal(err)
	}
	if len(*playIDs) > 0 {
		wanted := lo.Map(*playIDs, func(s string, _ int) uuid.UUID { return parseTrackID(s) })
		tracks = lo.Filter(tracks, func(trk track.Track, _ int) bool {
			return lo.Contains(wanted, trk.ID)
		})
	}
	if len(tracks) == 0 {
		fmt.Println("Nothing to play")
		return
	}

	sink := audio.NewMPDSink(cfg.MPD.Addr, cfg.MusicDir())
	if err := sink.Connect(); err != nil {
		fatal(err)
	}
	defer sink.Close()

	pub := nowplaying.NewConsolePublisher()
	eng := player.NewEngine(sink, pub, mgr)
	eng.SetTickInterval(cfg.TickInterval())

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := eng.SetQueue(tracks, *playStart); err != nil {
		fatal(err)
	}

	fmt.Println("Commands: p=pause/resume  n=next  b=previous  r=repeat-one  s SECONDS=seek  q=quit")
	go readCommands(pub, eng, cancel)

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
	eng.Stop(true)
}

// readCommands maps stdin lines to transport commands, standing in
// for a remote control surface.
func readCommands(pub *nowplaying.ConsolePublisher, eng *player.Engine, quit context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "p", "pause":
			pub.Send(nowplaying.Command{Type: nowplaying.CommandToggle})
		case "n", "next":
			pub.Send(nowplaying.Command{Type: nowplaying.CommandNext})
		case "b", "prev", "previous":
			pub.Send(nowplaying.Command{Type: nowplaying.CommandPrevious})
		case "r", "repeat":
			if eng.ToggleRepeatOne() {
				fmt.Println("Repeat one: on")
			} else {
				fmt.Println("Repeat one: off")
			}
		case "s", "seek":
			if len(fields) < 2 {
				fmt.Println("Usage: s SECONDS")
				continue
			}
			seconds, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Println("Usage: s SECONDS")
				continue
			}
			pub.Send(nowplaying.Command{Type: nowplaying.CommandSeek, SeekTo: seconds})
		case "q", "quit":
			quit()
			return
		}
	}
}
