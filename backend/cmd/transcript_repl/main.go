package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"transcriptServer/backend/config"
	"transcriptServer/backend/internal/clipboard"
	"transcriptServer/backend/internal/editor"
	"transcriptServer/backend/internal/logging"
	"transcriptServer/backend/internal/store"
	"transcriptServer/backend/internal/timecode"
)

// REPL holds the state of the interactive session.
type REPL struct {
	ctx         context.Context
	in          *bufio.Reader
	out         io.Writer
	log         zerolog.Logger
	transcripts *store.TranscriptStore
	snapshots   *store.SnapshotStore
	clip        editor.Clipboard
	tolerance   int64

	session *editor.Session
	// simulated media position
	playhead int64
}

func main() {
	cfg, err := config.Load("transcriptConfig")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init config failed: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, true)

	driver, dsn := cfg.Store.Driver, cfg.Store.DSN
	if len(os.Args) > 1 {
		driver, dsn = store.DriverSQLite, os.Args[1]
	}
	db, err := store.OpenGorm(driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer sqlDB.Close()

	r, err := newREPL(context.Background(), os.Stdin, os.Stdout, store.NewTranscriptStore(db), store.NewSnapshotStore(sqlDB), log)
	if err != nil {
		log.Fatal().Err(err).Msg("prepare store")
	}
	r.tolerance = cfg.Editor.ScrollToleranceMs
	if clipboard.Available() {
		r.clip = clipboard.System{}
	}

	fmt.Println("Transcript REPL - type 'help' for commands, 'quit' to exit")
	r.Run()
}

func newREPL(ctx context.Context, in io.Reader, out io.Writer, transcripts *store.TranscriptStore, snapshots *store.SnapshotStore, log zerolog.Logger) (*REPL, error) {
	if err := transcripts.Migrate(); err != nil {
		return nil, err
	}
	if err := snapshots.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &REPL{
		ctx:         ctx,
		in:          bufio.NewReader(in),
		out:         out,
		log:         log,
		transcripts: transcripts,
		snapshots:   snapshots,
		clip:        &clipboard.Memory{},
	}, nil
}

// Run reads commands until quit or end of input.
func (r *REPL) Run() {
	for {
		fmt.Fprint(r.out, "transcript> ")
		line, err := r.in.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			if !r.handle(line) {
				break
			}
		}
		if err != nil {
			break
		}
	}
	if r.session != nil {
		if err := r.session.Close(r.ctx); err != nil {
			fmt.Fprintf(r.out, "close: %v\n", err)
		}
	}
}

// Confirm asks on the same input stream the commands come from.
func (r *REPL) Confirm(p editor.DeletionPrompt) bool {
	fmt.Fprintf(r.out, "%s [y/N] ", p.Message)
	answer, _ := r.in.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (r *REPL) CurrentTime() (int64, error) { return r.playhead, nil }

func (r *REPL) Seek(startMs, endMs int64) error {
	r.playhead = startMs
	fmt.Fprintf(r.out, "seek %s to %s\n", timecode.Format(startMs), timecode.Format(endMs))
	return nil
}

func (r *REPL) SetSelectionHighlight(startMs, endMs int64) error {
	fmt.Fprintf(r.out, "highlight %s - %s\n", timecode.Format(startMs), timecode.Format(endMs))
	return nil
}

func (r *REPL) handle(line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	var err error
	switch strings.ToLower(cmd) {
	case "help":
		r.printHelp()
	case "quit", "exit":
		return false
	case "new":
		err = r.cmdNew(args)
	case "open":
		err = r.cmdOpen(rest)
	case "list":
		err = r.cmdList()
	default:
		if r.session == nil {
			err = errors.New("no transcript open")
			break
		}
		err = r.sessionCommand(strings.ToLower(cmd), rest, args)
	}
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
	return true
}

func (r *REPL) sessionCommand(cmd, rest string, args []string) error {
	s := r.session
	switch cmd {
	case "show":
		fmt.Fprintf(r.out, "%s [%s, rev %d, modified=%t]\n%s\n", s.ID(), s.State(), s.Revision(), s.Modified(), s.Text())
	case "markers":
		for _, m := range s.Markers() {
			fmt.Fprintf(r.out, "%6d  %s\n", m.Offset, timecode.Format(m.Time))
		}
	case "codes":
		if len(args) > 0 && args[0] == "off" {
			return s.HideCodes()
		}
		return s.ShowCodes()
	case "hidden":
		if len(args) > 0 && args[0] == "off" {
			s.HideAllHidden()
		} else {
			s.ShowAllHidden()
		}
	case "edit":
		return s.BeginEdit()
	case "save":
		return s.Save(r.ctx)
	case "done":
		return s.SaveAndEndEdit(r.ctx)
	case "discard":
		return s.Discard()
	case "reload":
		return s.Reload(r.ctx)

	case "mark":
		n, err := ints(args, 1)
		if err != nil {
			return err
		}
		if len(args) > 1 {
			ms, err := parseTime(args[1])
			if err != nil {
				return err
			}
			_, err = s.InsertMarker(n[0], ms)
			return err
		}
		_, err = s.InsertMarkerNow(n[0])
		return err
	case "span":
		if len(args) != 4 {
			return errors.New("usage: span <start> <end> <startTime> <endTime>")
		}
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		startMs, err := parseTime(args[2])
		if err != nil {
			return err
		}
		endMs, err := parseTime(args[3])
		if err != nil {
			return err
		}
		_, err = s.InsertTimedSpan(editor.Selection{Start: n[0], End: n[1]}, startMs, endMs)
		return err
	case "insert":
		offset, text, ok := strings.Cut(rest, " ")
		if !ok {
			return errors.New("usage: insert <offset> <text>")
		}
		n, err := strconv.Atoi(offset)
		if err != nil {
			return err
		}
		_, err = s.InsertText(n, text)
		return err
	case "del":
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		return r.report(s.DeleteRange(n[0], n[1], false))
	case "bs", "delf":
		n, err := ints(args, 1)
		if err != nil {
			return err
		}
		dir := editor.Forward
		if cmd == "bs" {
			dir = editor.Backward
		}
		return r.report(s.DeleteAdjacent(n[0], dir, false))
	case "copy":
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		return s.Copy(editor.Selection{Start: n[0], End: n[1]})
	case "cut":
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		return r.report(s.Cut(editor.Selection{Start: n[0], End: n[1]}, false))
	case "paste":
		n, err := ints(args, 1)
		if err != nil {
			return err
		}
		_, err = s.Paste(n[0])
		return err
	case "adjust":
		if len(args) != 1 {
			return errors.New("usage: adjust <deltaMs>")
		}
		d, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		return s.AdjustAllMarkers(d)

	case "clock":
		if len(args) != 1 {
			return errors.New("usage: clock <time>")
		}
		ms, err := parseTime(args[0])
		if err != nil {
			return err
		}
		r.playhead = ms
		moved, target, err := s.SyncToPlayback()
		if err == nil && moved {
			fmt.Fprintf(r.out, "cursor -> %d\n", target)
		}
		return err
	case "scroll":
		if len(args) != 1 {
			return errors.New("usage: scroll <time>")
		}
		ms, err := parseTime(args[0])
		if err != nil {
			return err
		}
		_, target := s.ScrollTargetForTime(ms)
		fmt.Fprintf(r.out, "cursor -> %d\n", target)
	case "range":
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		start, end := s.SelectedTimeRange(editor.Selection{Start: n[0], End: n[1]})
		fmt.Fprintf(r.out, "%s - %s\n", timecode.Format(start), timecode.Format(end))
	case "next", "prev":
		var (
			t   int64
			ok  bool
			err error
		)
		if cmd == "next" {
			t, ok, err = s.NextSegment()
		} else {
			t, ok, err = s.PrevSegment()
		}
		if err == nil && !ok {
			fmt.Fprintf(r.out, "no segment, staying at %s\n", timecode.Format(t))
		}
		return err
	case "play":
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		_, _, err = s.PlaySelection(editor.Selection{Start: n[0], End: n[1]})
		return err
	case "find":
		sel, ok := s.Find(rest, s.Selection().End, false, false)
		if !ok {
			fmt.Fprintln(r.out, "not found")
			return nil
		}
		s.SetSelection(sel)
		fmt.Fprintf(r.out, "found at %d-%d\n", sel.Start, sel.End)
	case "clip":
		n, err := ints(args, 2)
		if err != nil {
			return err
		}
		c, err := s.ClipSelection(editor.Selection{Start: n[0], End: n[1]})
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s - %s: %q\n", timecode.Format(c.StartTime), timecode.Format(c.EndTime), c.Text)
	case "history":
		hist, err := r.snapshots.History(r.ctx, s.ID(), 10)
		if err != nil {
			return err
		}
		for _, h := range hist {
			fmt.Fprintf(r.out, "rev %d  %d chars  %d markers\n", h.Revision, len([]rune(h.Content)), len(h.Markers))
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (r *REPL) report(res editor.EditResult, err error) error {
	if err != nil {
		return err
	}
	if res.Declined {
		fmt.Fprintln(r.out, "deletion cancelled")
	}
	return nil
}

func (r *REPL) cmdNew(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: new <title> [tapeLength]")
	}
	scope := editor.Scope{}
	if len(args) > 1 {
		ms, err := parseTime(args[1])
		if err != nil {
			return err
		}
		scope = editor.EpisodeScope(ms)
	}
	id, err := r.transcripts.Create(r.ctx, 0, args[0], scope, editor.Snapshot{Format: "text"})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "created %s\n", id)
	return r.cmdOpen(args[0])
}

func (r *REPL) cmdOpen(title string) error {
	title = strings.TrimSpace(title)
	id, err := r.transcripts.GetIDByTitle(r.ctx, title)
	if err != nil {
		return err
	}
	t, err := r.transcripts.Get(r.ctx, id)
	if err != nil {
		return err
	}
	if r.session != nil {
		if err := r.session.Close(r.ctx); err != nil {
			return err
		}
	}
	s, err := editor.Open(r.ctx, editor.Config{
		ID:          id,
		Scope:       t.Scope(),
		Persistence: store.Bind(id, r.transcripts, r.snapshots, r.log),
		TimeSource:  r,
		Playback:    r,
		Confirmer:   r,
		Clipboard:   r.clip,
		Logger:      r.log,
		Tolerance:   r.tolerance,
	})
	if err != nil {
		return err
	}
	r.session = s
	fmt.Fprintf(r.out, "opened %q (%s, %d markers)\n", t.Title, t.Scope(), len(s.Times()))
	return nil
}

func (r *REPL) cmdList() error {
	list, err := r.transcripts.List(r.ctx, 0)
	if err != nil {
		return err
	}
	for _, t := range list {
		fmt.Fprintf(r.out, "%s  %-30s rev %d\n", t.ID, t.Title, t.Revision)
	}
	return nil
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `Transcripts:  new <title> [tapeLength] | open <title> | list
Session:      show | markers | edit | save | done | discard | reload | history
View:         codes [on|off] | hidden [on|off]
Editing:      mark <offset> [time] | span <start> <end> <startTime> <endTime>
              insert <offset> <text> | del <start> <end> | bs <offset> | delf <offset>
              copy|cut <start> <end> | paste <offset> | adjust <deltaMs>
Navigation:   clock <time> | scroll <time> | range <start> <end> | next | prev
              play <start> <end> | find <text> | clip <start> <end>
Times are milliseconds or h:mm:ss.
`)
}

func ints(args []string, n int) ([]int, error) {
	if len(args) < n {
		return nil, fmt.Errorf("expected %d offsets", n)
	}
	out := make([]int, n)
	for i := range out {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, fmt.Errorf("offset %q: %w", args[i], err)
		}
		out[i] = v
	}
	return out, nil
}

// parseTime accepts plain milliseconds or h:mm:ss[.mmm].
func parseTime(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad time %q", s)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("bad time %q", s)
		}
		total = total*60 + v
	}
	return int64(total*1000 + 0.5), nil
}

