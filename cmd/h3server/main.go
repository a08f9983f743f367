// Command h3server is a minimal HTTP/3 server demo: it accepts QUIC
// connections, drives one package http3 Connection per connection, and
// answers every request with a canned response via a ServerHandler. It
// exists to exercise the server-side half of package http3 the way
// neqo-server exercises neqo-http3's server role.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michiboo/neqo/http3"
	"github.com/michiboo/neqo/quictransport"
)

var (
	listenAddr        string
	certFile          string
	keyFile           string
	maxTableSize      uint32
	maxBlockedStreams uint16
)

func main() {
	root := &cobra.Command{
		Use:   "h3server",
		Short: "serve a canned HTTP/3 response over QUIC",
		RunE:  run,
	}
	root.Flags().StringVarP(&listenAddr, "listen", "l", "0.0.0.0:4433", "UDP address to listen on")
	root.Flags().StringVar(&certFile, "cert", "", "TLS certificate file (required)")
	root.Flags().StringVar(&keyFile, "key", "", "TLS key file (required)")
	root.Flags().Uint32VarP(&maxTableSize, "max-table-size", "t", 128, "QPACK max dynamic table size")
	root.Flags().Uint16VarP(&maxBlockedStreams, "max-blocked-streams", "b", 128, "QPACK max blocked streams")
	root.MarkFlagRequired("cert")
	root.MarkFlagRequired("key")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log, _ := zap.NewProduction()
	defer log.Sync()
	sugar := log.Sugar()

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("load cert: %w", err)
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h3"},
	}

	ln, err := quic.ListenAddr(listenAddr, tlsConf, nil)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	sugar.Infow("listening", "addr", listenAddr)

	for {
		qconn, err := ln.Accept(context.Background())
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go serveConn(sugar, qconn)
	}
}

type cannedHandler struct {
	log *zap.SugaredLogger
}

func (h *cannedHandler) OnRequest(headers []http3.HeaderField, fin bool) ([]http3.HeaderField, []byte) {
	var path, method string
	for _, f := range headers {
		switch f.Name {
		case ":path":
			path = f.Value
		case ":method":
			method = f.Value
		}
	}
	h.log.Infow("request", "method", method, "path", path)
	body := []byte("hello from h3server\n")
	respHeaders := []http3.HeaderField{
		{Name: ":status", Value: "200"},
		{Name: "content-type", Value: "text/plain"},
	}
	return respHeaders, body
}

func serveConn(log *zap.SugaredLogger, qconn quic.Connection) {
	t := quictransport.New(qconn, http3.RoleServer)
	conn := http3.NewConnection(http3.ConnectionConfig{
		Role:                   http3.RoleServer,
		QPACKMaxTableSize:      maxTableSize,
		QPACKMaxBlockedStreams: maxBlockedStreams,
		Handler:                &cannedHandler{log: log},
	}, t)

	// quictransport's Events channel is fed by its own background
	// goroutines; a short poll interval is enough for a demo server
	// without busy-spinning a whole CPU per connection.
	for conn.State().Kind != http3.StateClosed {
		conn.ProcessInput(nil, 0)
		conn.ProcessHTTP3()
		conn.ProcessOutput(0)
		time.Sleep(5 * time.Millisecond)
	}
}
