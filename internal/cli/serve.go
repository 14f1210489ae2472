package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vhbit/querywatch/internal/diff"
	"github.com/vhbit/querywatch/internal/rowset"
	"github.com/vhbit/querywatch/internal/store"
	"github.com/vhbit/querywatch/internal/track"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tracked queries over websockets",
		Long: `Serve tracked queries over websockets.

Clients connect to /ws and subscribe with a JSON message:

  {"type":"subscribe","sql":"SELECT id, name FROM players ORDER BY id",
   "key":["id"],"alongside":"SELECT COUNT(*) FROM players"}

The server answers with one snapshot message holding the current rows,
then streams a changes message for every commit that reshapes the
result set. Subscriptions are multiplexed: pass your own "id" on
subscribe to correlate, or let the server assign one.

Commit notification is in-process, so writes must flow through this
server: POST a JSON body {"sql":"..."} to /exec and every overlapping
subscription is notified.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	db, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	srv := &http.Server{
		Addr:    opts.Addr,
		Handler: newServeHandler(db),
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("listening", "addr", opts.Addr)

	select {
	case sig := <-sigChan:
		slog.Info("received signal, shutting down", "signal", sig)
	case <-parentCtx.Done():
		slog.Info("context cancelled, shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server failed", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
	<-errCh
	return nil
}

// newServeHandler builds the HTTP surface: websocket subscriptions, a
// write endpoint, and a health probe. Split from runServe so tests can
// mount it on httptest.
func newServeHandler(db *store.DB) http.Handler {
	s := &watchServer{db: db}

	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)
	r.Post("/exec", s.handleExec)
	return r
}

// watchServer holds the shared database behind the HTTP handlers.
type watchServer struct {
	db *store.DB
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *watchServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExec applies one write statement. Commits made here notify
// every overlapping subscription in the process.
func (s *watchServer) handleExec(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SQL string `json:"sql"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing sql"})
		return
	}

	err := s.db.Write(func(wr rowset.Writer) error { return wr.Exec(req.SQL) })
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

// handleWS upgrades the connection and runs the subscription protocol:
//
//	-> {"type":"subscribe","id":"...","sql":"...","key":[...],"alongside":"..."}
//	<- {"type":"snapshot","id":"...","rows":[...]}
//	<- {"type":"changes","id":"...","seq":1,"changes":[...],"alongside":...}
//	-> {"type":"unsubscribe","id":"..."}
//	<- {"type":"unsubscribed","id":"..."}
func (s *watchServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	sess := newWSSession(s.db, conn)
	defer sess.close()
	sess.readLoop()
}

// wsSession multiplexes live subscriptions over one websocket
// connection. Its delivery queue is both the executor for every
// controller the session starts and the connection's single writer, so
// messages for one subscription never interleave or reorder.
type wsSession struct {
	db       *store.DB
	conn     *websocket.Conn
	delivery *track.SerialQueue
	subs     map[string]*track.Controller // readLoop goroutine only
}

func newWSSession(db *store.DB, conn *websocket.Conn) *wsSession {
	return &wsSession{
		db:       db,
		conn:     conn,
		delivery: track.NewSerialQueue(),
		subs:     make(map[string]*track.Controller),
	}
}

func (sess *wsSession) readLoop() {
	for {
		_, msg, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read failed", "error", err)
			}
			return
		}

		var req struct {
			Type      string   `json:"type"`
			ID        string   `json:"id"`
			SQL       string   `json:"sql"`
			Key       []string `json:"key"`
			Alongside string   `json:"alongside"`
		}
		if err := json.Unmarshal(msg, &req); err != nil {
			sess.post(errorMessage("", "invalid JSON"))
			continue
		}

		switch strings.ToLower(req.Type) {
		case "subscribe":
			sess.subscribe(req.ID, req.SQL, req.Key, req.Alongside)
		case "unsubscribe":
			sess.unsubscribe(req.ID)
		default:
			sess.post(errorMessage(req.ID, fmt.Sprintf("unknown message type %q", req.Type)))
		}
	}
}

func (sess *wsSession) subscribe(id, sql string, key []string, alongside string) {
	if strings.TrimSpace(sql) == "" {
		sess.post(errorMessage(id, "missing sql"))
		return
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, taken := sess.subs[id]; taken {
		sess.post(errorMessage(id, "subscription id already in use"))
		return
	}

	fwd := &wsForwarder{sess: sess, id: id}
	trackOpts := []track.Option{
		track.WithErrorHandler(fwd.cycleError),
	}
	if len(key) > 0 {
		trackOpts = append(trackOpts, track.WithKey(key...))
	}
	if alongside != "" {
		side := rowset.NewQuery(alongside)
		trackOpts = append(trackOpts, track.WithAlongside(func(r rowset.Reader) (any, error) {
			return r.Value(side)
		}))
	}

	c := track.New(sess.db, rowset.NewQuery(sql), sess.delivery, trackOpts...)
	c.Track(fwd)
	if err := c.Start(); err != nil {
		sess.post(errorMessage(id, err.Error()))
		return
	}
	sess.subs[id] = c

	// The snapshot rides the delivery stream. Batches ahead of it are
	// already folded into its rows and suppressed by the forwarder;
	// batches behind it flow to the client.
	c.Sync(func(rows rowset.Rows) {
		fwd.live = true
		sess.writeMessage(map[string]any{
			"type": "snapshot",
			"id":   id,
			"rows": rowMaps(rows),
		})
	})
}

func (sess *wsSession) unsubscribe(id string) {
	c, ok := sess.subs[id]
	if !ok {
		sess.post(errorMessage(id, "unknown subscription"))
		return
	}
	c.Stop()
	delete(sess.subs, id)
	sess.post(map[string]any{"type": "unsubscribed", "id": id})
}

// close stops every subscription, drains the delivery queue, and closes
// the connection. Runs on the readLoop goroutine after it exits.
func (sess *wsSession) close() {
	for id, c := range sess.subs {
		c.Stop()
		delete(sess.subs, id)
	}
	sess.delivery.Close()
	<-sess.delivery.Done()
	sess.conn.Close()
}

// writeMessage writes one message to the connection. Must run on the
// delivery queue goroutine - the connection's single writer.
func (sess *wsSession) writeMessage(msg map[string]any) {
	if err := sess.conn.WriteJSON(msg); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}

// post schedules a message onto the delivery queue from the read loop.
func (sess *wsSession) post(msg map[string]any) {
	sess.delivery.Async(func() { sess.writeMessage(msg) })
}

func errorMessage(id, text string) map[string]any {
	msg := map[string]any{"type": "error", "error": text}
	if id != "" {
		msg["id"] = id
	}
	return msg
}

func rowMaps(rows rowset.Rows) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = row.Map()
	}
	return out
}

// wsForwarder relays one subscription's batches to the client. All of
// its methods run on the session's delivery queue. Batches that arrive
// before the snapshot marker are dropped: their changes are already
// folded into the snapshot the client is about to receive.
type wsForwarder struct {
	sess    *wsSession
	id      string
	live    bool
	seq     int64
	pending []map[string]any
}

func (f *wsForwarder) WillChange() {
	f.pending = f.pending[:0]
}

func (f *wsForwarder) HandleChange(c diff.Change) {
	f.pending = append(f.pending, c.Map())
}

func (f *wsForwarder) DidChange(alongside any) {
	if !f.live {
		return
	}
	f.seq++
	msg := map[string]any{
		"type":    "changes",
		"id":      f.id,
		"seq":     f.seq,
		"changes": append([]map[string]any(nil), f.pending...),
	}
	if alongside != nil {
		msg["alongside"] = alongside
	}
	f.sess.writeMessage(msg)
}

func (f *wsForwarder) cycleError(err error) {
	f.sess.writeMessage(errorMessage(f.id, err.Error()))
}
