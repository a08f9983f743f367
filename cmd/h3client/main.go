// Command h3client is a minimal HTTP/3 client demo: it dials a QUIC
// connection, fetches one request, and prints the response headers and
// body as they arrive. It exists to exercise package http3 end to end
// against a real network, the way neqo-client exercises neqo-http3.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michiboo/neqo/http3"
	"github.com/michiboo/neqo/quictransport"
)

var (
	method            string
	headerPairs       []string
	maxTableSize      uint32
	maxBlockedStreams uint16
	omitBody          bool
	insecure          bool
)

func main() {
	root := &cobra.Command{
		Use:   "h3client <url>",
		Short: "fetch one HTTP/3 request and print the response",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().StringVarP(&method, "method", "m", "GET", "request method")
	root.Flags().StringArrayVarP(&headerPairs, "header", "H", nil, "extra request header, name:value (repeatable)")
	root.Flags().Uint32VarP(&maxTableSize, "max-table-size", "t", 128, "QPACK max dynamic table size")
	root.Flags().Uint16VarP(&maxBlockedStreams, "max-blocked-streams", "b", 128, "QPACK max blocked streams")
	root.Flags().BoolVar(&omitBody, "omit-read-data", false, "print byte counts instead of body contents")
	root.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log, _ := zap.NewProduction()
	defer log.Sync()
	sugar := log.Sugar()

	u, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := u.Hostname()
	addr := u.Host
	if u.Port() == "" {
		addr = host + ":443"
	}

	tlsConf := &tls.Config{
		ServerName:         host,
		NextProtos:         []string{"h3"},
		InsecureSkipVerify: insecure,
	}

	qconn, err := quic.DialAddr(context.Background(), addr, tlsConf, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	t := quictransport.New(qconn, http3.RoleClient)
	conn := http3.NewConnection(http3.ConnectionConfig{
		Role:                   http3.RoleClient,
		QPACKMaxTableSize:      maxTableSize,
		QPACKMaxBlockedStreams: maxBlockedStreams,
	}, t)

	headers := parseHeaders(headerPairs)

	for conn.State().Kind != http3.StateConnected {
		conn.ProcessInput(nil, 0)
		conn.ProcessHTTP3()
		if conn.State().Kind == http3.StateClosed || conn.State().Kind == http3.StateClosing {
			return fmt.Errorf("connection closed before handshake completed: %s", conn.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	streamID, err := conn.Fetch(method, u.Scheme, host, u.Path, headers)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	sugar.Infow("request sent", "stream_id", streamID, "method", method, "url", u.String())

	data := make([]byte, 4096)
	gotHeaders := false
	for {
		conn.ProcessInput(nil, 0)
		conn.ProcessHTTP3()

		for _, e := range conn.Events() {
			switch e.Kind {
			case http3.EventHeaderReady:
				if e.StreamID != streamID {
					continue
				}
				fields, _ := conn.GetHeaders(streamID)
				gotHeaders = true
				fmt.Printf("HEADERS[%d]: %v\n", streamID, fields)
			case http3.EventDataReadable:
				if e.StreamID != streamID {
					continue
				}
				n, fin, rerr := conn.ReadData(streamID, data)
				if rerr != nil {
					return rerr
				}
				if omitBody {
					fmt.Printf("DATA[%d]: %d bytes\n", streamID, n)
				} else {
					fmt.Printf("DATA[%d]: %s\n", streamID, string(data[:n]))
				}
				if fin {
					fmt.Printf("<FIN[%d]>\n", streamID)
					conn.Close(0, "kthxbye")
					return nil
				}
			case http3.EventConnectionClosed:
				if gotHeaders {
					return nil
				}
				return fmt.Errorf("connection closed with code %d", e.ErrorCode)
			}
		}

		if conn.State().Kind == http3.StateClosed {
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func parseHeaders(pairs []string) []http3.HeaderField {
	fields := make([]http3.HeaderField, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, ":")
		if !ok {
			continue
		}
		fields = append(fields, http3.HeaderField{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return fields
}
