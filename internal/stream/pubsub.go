package stream

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	logpkg "github.com/rzbill/strom/pkg/log"

	"github.com/rzbill/strom/internal/persistence"
)

// Response headers of the pub/sub endpoint.
const (
	HeaderStreamSize     = "X-Current-Stream-Size"
	HeaderSubscriptionID = "X-Current-Stream-Subscription-Id"
)

// ServeHTTP serves the stream's pub/sub protocol: schema, size, terminate,
// or a long-lived chunked entry feed. See parsePubSubParams for the
// recognized query options.
func (s *Stream[E]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := s.state
	if st.shutdown.Load() {
		writeError(w, http.StatusServiceUnavailable, ErrStreamInGracefulShutdown.Error())
		return
	}

	params, err := parsePubSubParams(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if params.TerminateRequested {
		st.httpMu.Lock()
		sub, ok := st.httpSubs[params.TerminateID]
		st.httpMu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, ErrSubscriptionNotFound.Error())
			return
		}
		// Termination completes asynchronously; the feed's own response ends
		// once its runner exits.
		sub.scope.AsyncTerminate()
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	size := st.persister.Size()

	if params.SizeOnly {
		sizeStr := strconv.FormatUint(size, 10)
		w.Header().Set(HeaderStreamSize, sizeStr)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(sizeStr + "\n"))
		}
		return
	}

	if params.SchemaRequested {
		s.serveSchema(w, params.SchemaFormat)
		return
	}

	s.serveSubscription(w, r, params, size)
}

func (s *Stream[E]) serveSchema(w http.ResponseWriter, format string) {
	schema := s.state.schema
	switch format {
	case "":
		writeJSON(w, http.StatusOK, schema)
	case "simple":
		writeJSON(w, http.StatusOK, subscribableSchema{
			TypeID:        schema.TypeID,
			EntryName:     schema.EntryName,
			NamespaceName: schema.NamespaceName,
		})
	default:
		if text, ok := schema.Language[format]; ok {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(text))
			return
		}
		writeJSON(w, http.StatusNotFound, schemaFormatNotFound{
			Error:                      "Unsupported schema format requested.",
			UnsupportedFormatRequested: format,
		})
	}
}

func (s *Stream[E]) serveSubscription(w http.ResponseWriter, r *http.Request, params RequestParams, size uint64) {
	st := s.state

	// Start-point selection: tail > recent > since > i, with timestamp
	// bounds translated to an index via binary search.
	var beginIdx uint64
	var fromTimestamp persistence.Micros
	switch {
	case params.TailSet:
		if params.TailFromEnd {
			beginIdx = size
		} else {
			var idxByTail uint64
			if params.Tail < size {
				idxByTail = size - params.Tail
			}
			beginIdx = max(params.BeginIndex, idxByTail)
		}
	case params.Recent > 0:
		fromTimestamp = persistence.Now() - params.Recent
	case params.Since > 0:
		fromTimestamp = params.Since
	default:
		beginIdx = params.BeginIndex
	}
	if fromTimestamp > 0 {
		idxByTimestamp, _ := st.persister.IndexRangeByTimestamp(fromTimestamp, 0)
		beginIdx = max(beginIdx, min(idxByTimestamp, size))
	}

	if params.NoWait && beginIdx >= size {
		// Nothing to return now and we were asked not to wait.
		w.WriteHeader(http.StatusOK)
		return
	}

	filter, err := newEntryFilter(params.Filter)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filter expression")
		return
	}

	subscriptionID := uuid.NewString()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(HeaderSubscriptionID, subscriptionID)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}
	if r.Method == http.MethodHead {
		return
	}

	endpoint := &pubSubEndpoint[E]{
		st:          st,
		w:           w,
		flusher:     flusher,
		flavor:      params.Flavor,
		filter:      filter,
		remaining:   params.Count,
		unlimited:   params.Count == 0,
		noWait:      params.NoWait,
		sizeAtStart: size,
	}

	// The registry entry must exist before the runner's done callback can
	// fire: insert under httpMu, which the callback also takes. The cleanup
	// runs on a detached goroutine because the callback executes on the
	// runner goroutine itself and must not join it.
	st.httpMu.Lock()
	scope, err := s.Subscribe(endpoint,
		FromIndex[E](beginIdx),
		WithDoneCallback[E](func() {
			go func() {
				st.httpMu.Lock()
				delete(st.httpSubs, subscriptionID)
				st.httpMu.Unlock()
				st.metrics.HTTPSubscriptionClosed()
			}()
		}),
	)
	if err != nil {
		// Shutdown raced us after the headers went out; just end the feed.
		st.httpMu.Unlock()
		return
	}
	st.httpSubs[subscriptionID] = &httpSubscription{scope: scope}
	st.httpMu.Unlock()
	st.metrics.HTTPSubscriptionOpened()
	st.logger.Debug("http subscription started",
		logpkg.Str("subscription_id", subscriptionID),
		logpkg.Uint64("begin_idx", beginIdx))

	select {
	case <-r.Context().Done():
		// Client went away; tear the runner down before releasing the
		// response writer.
		scope.AsyncTerminate()
		<-scope.Done()
	case <-scope.Done():
	}
}

// pubSubEndpoint adapts one HTTP response into a Subscriber: every delivered
// entry becomes one JSON line flushed as its own chunk.
type pubSubEndpoint[E any] struct {
	st          *state[E]
	w           http.ResponseWriter
	flusher     http.Flusher
	flavor      JSONFlavor
	filter      entryFilter
	remaining   uint64
	unlimited   bool
	noWait      bool
	sizeAtStart uint64
}

// OnEntry implements Subscriber.
func (ep *pubSubEndpoint[E]) OnEntry(entry E, current, _ persistence.IdxTs) EntryResponse {
	payload, err := ep.st.codec.Encode(entry)
	if err != nil {
		ep.st.logger.Error("encode entry for http subscriber", logpkg.Err(err))
		return EntryDone
	}
	if !ep.filter.Eval(current.Index, current.Us, payload) {
		return ep.caughtUp(current)
	}
	line, err := renderEntryLine(ep.flavor, ep.st.schema.EntryName, current, payload)
	if err != nil {
		return EntryDone
	}
	if _, err := ep.w.Write(line); err != nil {
		return EntryDone
	}
	if ep.flusher != nil {
		ep.flusher.Flush()
	}
	if !ep.unlimited {
		ep.remaining--
		if ep.remaining == 0 {
			return EntryDone
		}
	}
	return ep.caughtUp(current)
}

// caughtUp closes a nowait feed once the entries present at subscription
// time have been walked.
func (ep *pubSubEndpoint[E]) caughtUp(current persistence.IdxTs) EntryResponse {
	if ep.noWait && current.Index+1 >= ep.sizeAtStart {
		return EntryDone
	}
	return EntryMore
}

// OnHead implements Subscriber. Head heartbeats are not written to the wire.
func (ep *pubSubEndpoint[E]) OnHead(persistence.Micros) EntryResponse {
	if ep.noWait {
		return EntryDone
	}
	return EntryMore
}

// OnTerminate implements Subscriber.
func (ep *pubSubEndpoint[E]) OnTerminate() TerminationResponse {
	return TerminationDone
}

// renderEntryLine renders one entry in the selected JSON flavour,
// LF-terminated.
func renderEntryLine(flavor JSONFlavor, entryName string, pos persistence.IdxTs, payload []byte) ([]byte, error) {
	switch flavor {
	case FlavorMinimalistic:
		return append(append([]byte(nil), payload...), '\n'), nil
	case FlavorNewtonsoftFSharp:
		line, err := json.Marshal(struct {
			Case   string            `json:"Case"`
			Fields []json.RawMessage `json:"Fields"`
		}{Case: entryName, Fields: []json.RawMessage{payload}})
		if err != nil {
			return nil, err
		}
		return append(line, '\n'), nil
	default:
		pref, err := json.Marshal(pos)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Write(pref)
		buf.WriteByte('\t')
		buf.Write(payload)
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
