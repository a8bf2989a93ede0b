package collab

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"transcriptServer/backend/internal/cache"
	"transcriptServer/backend/internal/clipboard"
	"transcriptServer/backend/internal/editor"
)

var ErrNotEditor = errors.New("transcript is not in edit mode for this user")

// Catalog resolves a transcript id to its scope and storage.
type Catalog interface {
	Binding(ctx context.Context, id string) (editor.Scope, editor.Persistence, error)
}

// Listener receives committed changes of one transcript. It runs with the
// transcript locked and must not call back into the Service.
type Listener func(id string, ev editor.Event, s *editor.Session)

type ServiceOptions struct {
	// Tolerance and CodesVisible are handed to every session.
	Tolerance    int64
	CodesVisible bool
	// PlayheadTTL bounds how long a reported media position is trusted.
	PlayheadTTL time.Duration
}

type docState struct {
	mu      sync.Mutex
	session *editor.Session
	// editor is the user holding edit mode, 0 when read-only
	editor    uint64
	clock     *playheadClock
	listeners map[int]Listener
	nextID    int
}

// Service hosts one editor.Session per open transcript and serialises every
// call into it behind that transcript's mutex.
type Service struct {
	mu   sync.RWMutex
	docs map[string]*docState
	sf   singleflight.Group

	catalog    Catalog
	lock       cache.EditLock
	presence   cache.PresenceCache
	dispatcher *KafkaDispatcher
	opts       ServiceOptions
	log        zerolog.Logger
}

// NewService wires the session host. lock, presence and dispatcher are
// optional.
func NewService(catalog Catalog, lock cache.EditLock, presence cache.PresenceCache, dispatcher *KafkaDispatcher, opts ServiceOptions, log zerolog.Logger) *Service {
	if opts.PlayheadTTL <= 0 {
		opts.PlayheadTTL = time.Minute
	}
	return &Service{
		docs:       make(map[string]*docState),
		catalog:    catalog,
		lock:       lock,
		presence:   presence,
		dispatcher: dispatcher,
		opts:       opts,
		log:        log.With().Str("component", "collab").Logger(),
	}
}

// getOrOpen returns the live state of id, loading the transcript once even
// when many callers ask at the same time.
func (s *Service) getOrOpen(ctx context.Context, id string) (*docState, error) {
	s.mu.RLock()
	ds := s.docs[id]
	s.mu.RUnlock()
	if ds != nil {
		return ds, nil
	}

	v, err, _ := s.sf.Do(id, func() (any, error) {
		s.mu.RLock()
		ds := s.docs[id]
		s.mu.RUnlock()
		if ds != nil {
			return ds, nil
		}
		ds, err := s.open(ctx, id)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.docs[id] = ds
		s.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*docState), nil
}

func (s *Service) open(ctx context.Context, id string) (*docState, error) {
	scope, persist, err := s.catalog.Binding(ctx, id)
	if err != nil {
		return nil, err
	}
	ds := &docState{listeners: make(map[int]Listener)}
	ds.clock = &playheadClock{id: id, presence: s.presence, doc: ds}
	sess, err := editor.Open(ctx, editor.Config{
		ID:           id,
		Scope:        scope,
		Persistence:  persist,
		TimeSource:   ds.clock,
		Clipboard:    &clipboard.Memory{},
		Logger:       s.log,
		Tolerance:    s.opts.Tolerance,
		CodesVisible: s.opts.CodesVisible,
	})
	if err != nil {
		return nil, err
	}
	sess.AddObserver(editor.ObserverFunc(func(ev editor.Event) { s.fanOut(id, ds, ev) }))
	ds.session = sess
	s.log.Info().Str("transcriptId", id).Str("scope", scope.String()).Msg("transcript opened")
	return ds, nil
}

// fanOut runs with ds.mu held.
func (s *Service) fanOut(id string, ds *docState, ev editor.Event) {
	for _, l := range ds.listeners {
		l(id, ev, ds.session)
	}
	if s.dispatcher == nil || ev.Kind == editor.EventStyleChanged {
		return
	}
	evt := newTranscriptEvent(id, ds.editor, ev, ds.session.Times())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.dispatcher.Enqueue(ctx, evt); err != nil {
		s.log.Warn().Err(err).Str("transcriptId", id).Msg("dropping transcript event")
	}
}

// View runs fn against the session of id without requiring edit mode.
func (s *Service) View(ctx context.Context, id string, fn func(*editor.Session) error) error {
	ds, err := s.getOrOpen(ctx, id)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return fn(ds.session)
}

// Edit runs fn for userID, who must hold edit mode on id.
func (s *Service) Edit(ctx context.Context, id string, userID uint64, fn func(*editor.Session) error) error {
	ds, err := s.getOrOpen(ctx, id)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.editor != userID || ds.session.State() != editor.StateEditable {
		return ErrNotEditor
	}
	if s.lock != nil {
		if err := s.lock.Refresh(ctx, id, owner(userID)); err != nil {
			return fmt.Errorf("refresh edit lock: %w", err)
		}
	}
	return fn(ds.session)
}

// SetCodesVisible switches the document-wide marker visibility. While someone
// holds edit mode only they may change it.
func (s *Service) SetCodesVisible(ctx context.Context, id string, userID uint64, visible bool) error {
	ds, err := s.getOrOpen(ctx, id)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.editor != 0 && ds.editor != userID {
		return ErrNotEditor
	}
	if visible {
		return ds.session.ShowCodes()
	}
	return ds.session.HideCodes()
}

// Watch registers l for committed changes of id. The returned func removes it.
func (s *Service) Watch(ctx context.Context, id string, l Listener) (func(), error) {
	ds, err := s.getOrOpen(ctx, id)
	if err != nil {
		return nil, err
	}
	ds.mu.Lock()
	key := ds.nextID
	ds.nextID++
	ds.listeners[key] = l
	ds.mu.Unlock()
	return func() {
		ds.mu.Lock()
		delete(ds.listeners, key)
		ds.mu.Unlock()
	}, nil
}

// BeginEdit switches id to edit mode for userID, taking the record lock.
func (s *Service) BeginEdit(ctx context.Context, id string, userID uint64) error {
	ds, err := s.getOrOpen(ctx, id)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.editor != 0 && ds.editor != userID {
		return cache.ErrLockHeld
	}
	if s.lock != nil {
		if err := s.lock.Acquire(ctx, id, owner(userID)); err != nil {
			return err
		}
	}
	if err := ds.session.BeginEdit(); err != nil {
		s.releaseLock(ctx, id, userID)
		return err
	}
	ds.editor = userID
	return nil
}

// Save persists id without leaving edit mode.
func (s *Service) Save(ctx context.Context, id string, userID uint64) error {
	return s.Edit(ctx, id, userID, func(sess *editor.Session) error {
		return sess.Save(ctx)
	})
}

// SaveAndEndEdit persists id and gives up edit mode and the lock.
func (s *Service) SaveAndEndEdit(ctx context.Context, id string, userID uint64) error {
	return s.endEdit(ctx, id, userID, func(sess *editor.Session) error {
		return sess.SaveAndEndEdit(ctx)
	})
}

// Discard drops unsaved changes and gives up edit mode and the lock.
func (s *Service) Discard(ctx context.Context, id string, userID uint64) error {
	return s.endEdit(ctx, id, userID, func(sess *editor.Session) error {
		return sess.Discard()
	})
}

func (s *Service) endEdit(ctx context.Context, id string, userID uint64, fn func(*editor.Session) error) error {
	ds, err := s.getOrOpen(ctx, id)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.editor != userID {
		return ErrNotEditor
	}
	if err := fn(ds.session); err != nil {
		return err
	}
	ds.editor = 0
	s.releaseLock(ctx, id, userID)
	return nil
}

// Leave is called when userID disconnects from id. An editor's pending
// changes are saved and edit mode ends.
func (s *Service) Leave(ctx context.Context, id string, userID uint64) error {
	s.mu.RLock()
	ds := s.docs[id]
	s.mu.RUnlock()
	if s.presence != nil {
		if err := s.presence.RemoveMember(ctx, id, userID); err != nil {
			s.log.Warn().Err(err).Str("transcriptId", id).Uint64("userId", userID).Msg("presence remove failed")
		}
	}
	if ds == nil {
		return nil
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.editor != userID {
		return nil
	}
	var err error
	if ds.session.Modified() {
		err = ds.session.SaveAndEndEdit(ctx)
	} else {
		err = ds.session.Discard()
	}
	if err != nil {
		return err
	}
	ds.editor = 0
	s.releaseLock(ctx, id, userID)
	return nil
}

// Join opens id if needed and records userID as present in it.
func (s *Service) Join(ctx context.Context, id string, userID uint64, username string) error {
	if _, err := s.getOrOpen(ctx, id); err != nil {
		return err
	}
	if s.presence == nil {
		return nil
	}
	return s.presence.AddMember(ctx, id, userID, username, s.opts.PlayheadTTL)
}

// Members lists users present in id. Without a presence cache it is empty.
func (s *Service) Members(ctx context.Context, id string) ([]cache.PresenceMember, error) {
	if s.presence == nil {
		return nil, nil
	}
	return s.presence.AliveMembers(ctx, id)
}

// ReportPlayhead records where userID's media player is. The editing user's
// position is what InsertMarkerNow stamps.
func (s *Service) ReportPlayhead(ctx context.Context, id string, userID uint64, ms int64) error {
	ds, err := s.getOrOpen(ctx, id)
	if err != nil {
		return err
	}
	ds.mu.Lock()
	if ds.editor == 0 || ds.editor == userID {
		ds.clock.set(ms)
	}
	ds.mu.Unlock()
	if s.presence == nil {
		return nil
	}
	return s.presence.SetPlayhead(ctx, id, userID, ms, s.opts.PlayheadTTL)
}

// Close saves and closes every open transcript and releases held locks.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	docs := s.docs
	s.docs = make(map[string]*docState)
	s.mu.Unlock()

	var errs []error
	for id, ds := range docs {
		ds.mu.Lock()
		if err := ds.session.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
		if ds.editor != 0 {
			s.releaseLock(ctx, id, ds.editor)
			ds.editor = 0
		}
		ds.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *Service) releaseLock(ctx context.Context, id string, userID uint64) {
	if s.lock == nil {
		return
	}
	if err := s.lock.Release(ctx, id, owner(userID)); err != nil {
		s.log.Warn().Err(err).Str("transcriptId", id).Uint64("userId", userID).Msg("edit lock release failed")
	}
}

func owner(userID uint64) string { return strconv.FormatUint(userID, 10) }

// playheadClock is the session's time source: the position last reported by
// the client, falling back to the presence cache.
type playheadClock struct {
	id       string
	presence cache.PresenceCache
	doc      *docState

	mu    sync.Mutex
	ms    int64
	known bool
}

func (c *playheadClock) set(ms int64) {
	c.mu.Lock()
	c.ms, c.known = ms, true
	c.mu.Unlock()
}

func (c *playheadClock) CurrentTime() (int64, error) {
	c.mu.Lock()
	ms, known := c.ms, c.known
	c.mu.Unlock()
	if known {
		return ms, nil
	}
	// called with doc.mu held, so editor is stable
	if c.presence == nil || c.doc.editor == 0 {
		return 0, editor.ErrNoTimeSource
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	ms, err := c.presence.Playhead(ctx, c.id, c.doc.editor)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", editor.ErrNoTimeSource, err)
	}
	return ms, nil
}
