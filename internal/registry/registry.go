package registry

import (
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/claude-code-ui/terminaldaemon/internal/entry"
	"github.com/claude-code-ui/terminaldaemon/internal/status"
	"github.com/claude-code-ui/terminaldaemon/internal/tailer"
)

// Config bundles the status-derivation thresholds and the age cutoff
// (MAX_AGE_HOURS in §6) that GetAll applies. Emitted events are not
// filtered by age: every session reaches the publisher.
type Config struct {
	Status  status.Config
	MaxAge  time.Duration
	Now     func() time.Time // injectable clock for deterministic tests
	Suffix  string
}

func DefaultConfig() Config {
	return Config{
		Status: status.DefaultConfig(),
		MaxAge: 24 * time.Hour,
		Now:    time.Now,
		Suffix: ".jsonl",
	}
}

// Registry is the in-memory mapping from sessionId to Session. Mutations
// for a given session are serialized by a per-session dispatcher
// goroutine; different sessions are processed concurrently. Map access
// itself is additionally guarded by mu since dispatchers may reach into
// each other's sessions during supersession.
type Registry struct {
	cfg Config

	mu          sync.Mutex
	sessions    map[string]*Session            // sessionId -> session
	pathToID    map[string]string              // log path -> sessionId
	pending     map[string]*entry.Metadata      // log path -> metadata not yet complete enough to register
	pendingRaw  map[string][]*entry.RawEntry    // log path -> entries buffered while metadata incomplete
	dispatchers map[string]chan func()

	// subagentParents maps a Task tool use's toolUseId to the sessionId
	// that issued it, so the subagent transcript it spawns can be found
	// when its first log line arrives.
	subagentParents map[string]string
	// subsessionPaths maps a subagent transcript's log path to the
	// sessionId its entries have been folded into, once classified.
	subsessionPaths map[string]string

	events chan Event
}

func New(cfg Config) *Registry {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		cfg:             cfg,
		sessions:        make(map[string]*Session),
		pathToID:        make(map[string]string),
		pending:         make(map[string]*entry.Metadata),
		pendingRaw:      make(map[string][]*entry.RawEntry),
		dispatchers:     make(map[string]chan func()),
		subagentParents: make(map[string]string),
		subsessionPaths: make(map[string]string),
		events:          make(chan Event, 1024),
	}
}

func (r *Registry) Events() <-chan Event { return r.events }

// SessionIDFromPath derives the session identifier from the log
// filename's stem convention: the segment before the known suffix.
func SessionIDFromPath(path string, suffix string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, suffix)
}

// dispatcherFor returns (creating if needed) the serial worker channel
// for key, and ensures a goroutine is draining it.
func (r *Registry) dispatcherFor(key string) chan func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.dispatchers[key]
	if ok {
		return ch
	}
	ch = make(chan func(), 64)
	r.dispatchers[key] = ch
	go func() {
		for fn := range ch {
			fn()
		}
	}()
	return ch
}

// HandleBatch processes one tailer.Batch for a given hostname label,
// running the mutation on the session's serial dispatcher.
func (r *Registry) HandleBatch(hostname string, b tailer.Batch) {
	sessionKey := SessionIDFromPath(b.Path, r.cfg.Suffix)
	r.mu.Lock()
	if parentID, ok := r.subsessionPaths[b.Path]; ok {
		// Already classified as a subagent transcript: dispatch on the
		// parent's serial channel so the fold-in append is ordered
		// against the parent's own log's mutations.
		sessionKey = parentID
	}
	r.mu.Unlock()

	ch := r.dispatcherFor(sessionKey)
	done := make(chan struct{})
	ch <- func() {
		defer close(done)
		switch b.Signal {
		case tailer.SignalUnlink:
			r.mu.Lock()
			delete(r.subsessionPaths, b.Path)
			r.mu.Unlock()
			r.handleUnlink(b.Path)
		default:
			if b.Err != nil {
				log.Printf("[registry] tailer error on %s: %v", b.Path, b.Err)
				return
			}
			r.mu.Lock()
			parentID, isSub := r.subsessionPaths[b.Path]
			r.mu.Unlock()
			if isSub {
				r.foldSubagentEntries(parentID, b.Entries)
				return
			}
			r.handleEntries(hostname, b.Path, b.Entries, b.NewOffset)
		}
	}
	<-done
}

// foldSubagentEntries appends a subagent transcript's new entries into
// the session that spawned it via a Task tool use, rather than
// registering the transcript as its own session. Runs on the parent
// session's dispatcher (HandleBatch routes classified subagent paths
// there), so this mutates sess directly rather than re-entering
// handleEntries.
func (r *Registry) foldSubagentEntries(parentID string, newEntries []*entry.RawEntry) {
	r.mu.Lock()
	sess, ok := r.sessions[parentID]
	r.mu.Unlock()
	if !ok || len(newEntries) == 0 {
		return
	}

	prevStatus := sess.Status
	prevCount := sess.MessageCount
	sess.Entries = append(sess.Entries, newEntries...)
	r.registerSubagentToolUses(parentID, newEntries)
	r.recomputeDerived(sess)

	if sess.Status != prevStatus || sess.MessageCount > prevCount {
		r.emit(Event{Type: EventUpdated, Session: sess.Clone()})
	}
}

// registerSubagentToolUses records every Task tool use among entries as
// belonging to sessionID, so the subagent transcript it spawns can later
// be matched by its parentToolUseId and folded into sessionID.
func (r *Registry) registerSubagentToolUses(sessionID string, entries []*entry.RawEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		if e.Shape == entry.ShapeAssistantToolUse && e.ToolName == "Task" && e.ToolUseID != "" {
			r.subagentParents[e.ToolUseID] = sessionID
		}
	}
}

// classifySubsession checks whether any of entries carries a
// parentToolUseId matching a tracked Task tool use, and if so records
// path as belonging to that session's subagent fold-in set. Returns the
// parent sessionID and whether classification succeeded.
func (r *Registry) classifySubsession(path string, entries []*entry.RawEntry) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if parentID, ok := r.subsessionPaths[path]; ok {
		return parentID, true
	}
	for _, e := range entries {
		if e.ParentToolUseIDHint == "" {
			continue
		}
		if parentID, ok := r.subagentParents[e.ParentToolUseIDHint]; ok {
			r.subsessionPaths[path] = parentID
			return parentID, true
		}
	}
	return "", false
}

func (r *Registry) handleEntries(hostname, path string, newEntries []*entry.RawEntry, newOffset int64) {
	r.mu.Lock()
	sessionID, known := r.pathToID[path]
	r.mu.Unlock()

	if !known {
		if parentID, ok := r.classifySubsession(path, newEntries); ok {
			r.mu.Lock()
			delete(r.pending, path)
			delete(r.pendingRaw, path)
			r.mu.Unlock()
			r.foldSubagentEntries(parentID, newEntries)
			return
		}
	}

	// Metadata is accumulated only while the session is not yet public;
	// once registered, later lines update Goal (and OriginalPrompt if it
	// is still empty) but not GitBranch or the other metadata fields.
	meta := r.pending[path]
	if meta == nil {
		meta = &entry.Metadata{}
	}

	if !known {
		r.pendingRaw[path] = append(r.pendingRaw[path], newEntries...)
		// We don't have raw lines here (only decoded entries), so metadata
		// completeness is judged from the decoded entries directly.
		updateMetadataFromEntries(meta, r.pendingRaw[path])
		r.pending[path] = meta

		if meta.CWD == "" || meta.StartedAt.IsZero() {
			// Metadata incomplete: the session does not yet exist publicly.
			return
		}

		sessionID = deriveSessionID(path, meta)
		sess := &Session{
			ID:             sessionID,
			Hostname:       hostname,
			CWD:            meta.CWD,
			GitBranch:      meta.GitBranch,
			OriginalPrompt: meta.OriginalPrompt,
			StartedAt:      meta.StartedAt,
			Entries:        r.pendingRaw[path],
			BytePosition:   newOffset,
			LogPath:        path,
		}
		r.recomputeDerived(sess)

		r.mu.Lock()
		r.pathToID[path] = sessionID
		r.sessions[sessionID] = sess
		r.mu.Unlock()
		delete(r.pending, path)
		delete(r.pendingRaw, path)
		r.registerSubagentToolUses(sessionID, sess.Entries)

		r.emit(Event{Type: EventCreated, Session: sess.Clone()})
		r.applySupersession(sess)
		return
	}

	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	prevStatus := sess.Status
	prevCount := sess.MessageCount

	sess.Entries = append(sess.Entries, newEntries...)
	sess.BytePosition = newOffset
	r.registerSubagentToolUses(sessionID, newEntries)
	for _, e := range newEntries {
		if entry.IsMeaningfulPrompt(e) {
			sess.Goal = e.Text
			if sess.OriginalPrompt == "" {
				sess.OriginalPrompt = e.Text
			}
		}
	}
	r.recomputeDerived(sess)

	if sess.Status != prevStatus || sess.MessageCount > prevCount {
		if prevStatus == status.Working && sess.Status == status.Waiting {
			nt := "waiting_for_input"
			if sess.HasPendingToolUse {
				nt = "needs_approval"
			}
			sess.Notification = &Notification{Type: nt, Timestamp: r.cfg.Now()}
		} else {
			sess.Notification = nil
		}
		r.emit(Event{Type: EventUpdated, Session: sess.Clone()})
		sess.Notification = nil
	}
}

// Reevaluate recomputes status for sessionID without new log entries
// (the Periodic Re-evaluator's hook) and emits an update if changed.
func (r *Registry) Reevaluate(sessionID string) {
	ch := r.dispatcherFor(sessionID)
	done := make(chan struct{})
	ch <- func() {
		defer close(done)
		r.mu.Lock()
		sess, ok := r.sessions[sessionID]
		r.mu.Unlock()
		if !ok {
			return
		}
		prevStatus := sess.Status
		r.recomputeDerived(sess)
		if sess.Status != prevStatus {
			if prevStatus == status.Working && sess.Status == status.Waiting {
				nt := "waiting_for_input"
				if sess.HasPendingToolUse {
					nt = "needs_approval"
				}
				sess.Notification = &Notification{Type: nt, Timestamp: r.cfg.Now()}
			} else {
				sess.Notification = nil
			}
			r.emit(Event{Type: EventUpdated, Session: sess.Clone()})
			sess.Notification = nil
		}
	}
	<-done
}

// UpdateGitInfo sets sessionID's git branch/repo fields from a
// gitinfo.Lookup result, run by the composition root on a per-session
// background goroutine. A no-op if the session is gone or branch is
// empty (nothing learned).
func (r *Registry) UpdateGitInfo(sessionID, branch, repoID string) {
	if branch == "" {
		return
	}
	ch := r.dispatcherFor(sessionID)
	done := make(chan struct{})
	ch <- func() {
		defer close(done)
		r.mu.Lock()
		sess, ok := r.sessions[sessionID]
		r.mu.Unlock()
		if !ok || sess.GitBranch == branch {
			return
		}
		sess.GitBranch = branch
		sess.GitRepoID = repoID
		r.emit(Event{Type: EventUpdated, Session: sess.Clone()})
	}
	<-done
}

// UpdatePR sets sessionID's associated pull request from a
// prpoll.Lookup result.
func (r *Registry) UpdatePR(sessionID string, pr *PRInfo) {
	if pr == nil {
		return
	}
	ch := r.dispatcherFor(sessionID)
	done := make(chan struct{})
	ch <- func() {
		defer close(done)
		r.mu.Lock()
		sess, ok := r.sessions[sessionID]
		r.mu.Unlock()
		if !ok {
			return
		}
		sess.PR = pr
		r.emit(Event{Type: EventUpdated, Session: sess.Clone()})
	}
	<-done
}

// UpdateSummary sets sessionID's one-line summary from a
// summarize.Client result.
func (r *Registry) UpdateSummary(sessionID, summary string) {
	if summary == "" {
		return
	}
	ch := r.dispatcherFor(sessionID)
	done := make(chan struct{})
	ch <- func() {
		defer close(done)
		r.mu.Lock()
		sess, ok := r.sessions[sessionID]
		r.mu.Unlock()
		if !ok || sess.Summary == summary {
			return
		}
		sess.Summary = summary
		r.emit(Event{Type: EventUpdated, Session: sess.Clone()})
	}
	<-done
}

// WorkingSessionIDs returns the IDs of every session currently in the
// "working" status, for the Periodic Re-evaluator to iterate.
func (r *Registry) WorkingSessionIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.Status == status.Working {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) recomputeDerived(sess *Session) {
	tup := status.Derive(sess.Entries, r.cfg.Now(), r.cfg.Status)
	sess.Status = tup.Status
	sess.HasPendingToolUse = tup.HasPendingToolUse
	sess.PendingTool = tup.PendingTool
	sess.MessageCount = tup.MessageCount
	sess.LastActivityAt = tup.LastActivityAt
	if sess.Goal == "" {
		sess.Goal = sess.OriginalPrompt
	}
}

func (r *Registry) handleUnlink(path string) {
	r.mu.Lock()
	sessionID, ok := r.pathToID[path]
	if ok {
		delete(r.pathToID, path)
	}
	delete(r.pending, path)
	delete(r.pendingRaw, path)
	var sess *Session
	if ok {
		sess = r.sessions[sessionID]
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if sess != nil {
		r.emit(Event{Type: EventDeleted, Session: &Session{ID: sess.ID, Hostname: sess.Hostname, CWD: sess.CWD}})
	}
}

// applySupersession implements §4.4 step 5: on created(new), delete
// every other session with the same hostname+cwd whose status is idle.
func (r *Registry) applySupersession(created *Session) {
	r.mu.Lock()
	var toDelete []*Session
	for id, s := range r.sessions {
		if id == created.ID {
			continue
		}
		if s.Hostname != created.Hostname || s.CWD != created.CWD {
			continue
		}
		// Recompute status fresh against the current clock before judging
		// idleness: a sibling may have gone idle purely from elapsed time,
		// with no tailer event to have triggered a recompute yet.
		r.recomputeDerived(s)
		if s.IsTerminal() {
			toDelete = append(toDelete, s)
		}
	}
	for _, s := range toDelete {
		delete(r.sessions, s.ID)
		delete(r.pathToID, s.LogPath)
	}
	r.mu.Unlock()

	for _, s := range toDelete {
		r.emit(Event{Type: EventDeleted, Session: &Session{ID: s.ID, Hostname: s.Hostname, CWD: s.CWD}})
	}
}

func (r *Registry) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		log.Printf("[registry] event channel full, dropping %s event for session", ev.Type)
	}
}

// Get returns a defensive copy of the session, for HTTP/facade reads.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// GetAll returns defensive copies of every session younger than MaxAge.
func (r *Registry) GetAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.cfg.Now()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if r.cfg.MaxAge > 0 && now.Sub(s.StartedAt) > r.cfg.MaxAge {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

func updateMetadataFromEntries(meta *entry.Metadata, entries []*entry.RawEntry) {
	for _, e := range entries {
		if meta.StartedAt.IsZero() && !e.Timestamp.IsZero() {
			meta.StartedAt = e.Timestamp
		}
		if meta.OriginalPrompt == "" && entry.IsMeaningfulPrompt(e) {
			meta.OriginalPrompt = e.Text
		}
		if meta.SessionID == "" && e.SessionIDHint != "" {
			meta.SessionID = e.SessionIDHint
		}
		if meta.CWD == "" && e.CWDHint != "" {
			meta.CWD = e.CWDHint
		}
		if meta.GitBranch == "" && e.GitBranchHint != "" {
			meta.GitBranch = e.GitBranchHint
		}
	}
}

// deriveSessionID uses the filename stem convention; cwd-derived
// metadata never overrides the identifier the file itself encodes.
func deriveSessionID(path string, meta *entry.Metadata) string {
	if id := SessionIDFromPath(path, ".jsonl"); id != "" {
		return id
	}
	return meta.SessionID
}
