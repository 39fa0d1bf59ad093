package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/trapp/kcoin/pkg/core/blockchain"
	"github.com/trapp/kcoin/pkg/core/mempool"
	"github.com/trapp/kcoin/pkg/core/store"
	"github.com/trapp/kcoin/pkg/core/types"
)

// Server exposes the node over JSON-RPC 2.0 on a single HTTP endpoint.
type Server struct {
	store     *store.Store
	pool      *mempool.Pool
	assembler *blockchain.Assembler
	network   types.Network
	blockSize int

	methods    map[string]handlerFunc
	router     *mux.Router
	httpServer *http.Server
}

// NewServer wires the method table. regtest additionally registers
// regtest_generate for on-demand block production.
func NewServer(st *store.Store, pool *mempool.Pool, asm *blockchain.Assembler, network types.Network, blockSize int, regtest bool) *Server {
	s := &Server{
		store:     st,
		pool:      pool,
		assembler: asm,
		network:   network,
		blockSize: blockSize,
		router:    mux.NewRouter(),
	}

	s.methods = map[string]handlerFunc{
		"chain_getHeight":               s.chainGetHeight,
		"chain_getBlockByHeight":        s.chainGetBlockByHeight,
		"chain_getTransactions":         s.chainGetTransactions,
		"chain_getTransactionByHash":    s.chainGetTransactionByHash,
		"chain_addressInfo":             s.chainAddressInfo,
		"mempool_getTransactions":       s.mempoolGetTransactions,
		"mempool_getTransactionByHash":  s.mempoolGetTransactionByHash,
		"mempool_getStats":              s.mempoolGetStats,
		"tx_send":                       s.txSend,
	}
	if regtest {
		s.methods["regtest_generate"] = s.regtestGenerate
	}

	s.router.Use(loggingMiddleware)
	s.router.HandleFunc("/", s.handleRPC).Methods("POST")
	return s
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.Debugf("%s %s %s", r.Method, r.RequestURI, time.Since(start))
	})
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	logrus.Infof("rpc server listening on %s", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, response{JSONRPC: "2.0", Error: errInvalidRequest(), ID: nullID()})
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, response{JSONRPC: "2.0", Error: errParse(), ID: nullID()})
		return
	}
	id := req.ID
	if len(id) == 0 {
		id = nullID()
	}
	if req.Method == "" {
		writeResponse(w, response{JSONRPC: "2.0", Error: errInvalidRequest(), ID: id})
		return
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		writeResponse(w, response{JSONRPC: "2.0", Error: errMethodNotFound(), ID: id})
		return
	}

	logrus.Debugf("received call to %s", req.Method)
	result, err := handler(req.Params)
	if err != nil {
		writeResponse(w, response{JSONRPC: "2.0", Error: asRPCError(err), ID: id})
		return
	}
	writeResponse(w, response{JSONRPC: "2.0", Result: result, ID: id})
}

func writeResponse(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logrus.WithError(err).Error("failed to write rpc response")
	}
}

func nullID() json.RawMessage {
	return json.RawMessage("null")
}

// asRPCError maps an error to its wire form. Store errors other than
// not-found mask to a generic internal error.
func asRPCError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, store.ErrNotFound) {
		return errNotFound()
	}
	logrus.WithError(err).Error("internal error")
	return errInternal()
}
