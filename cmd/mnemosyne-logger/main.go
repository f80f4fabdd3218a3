// Command mnemosyne-logger runs one DAG logger instance: it bootstraps the
// record store, sync adapter, reference checker, replication counter, and
// event interface described by spec.md, wires them together the way
// node.New assembles a protocol stack's services, and optionally exposes a
// read-only admin/status HTTP API.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fjl/memsize"
	"github.com/urfave/cli/v2"

	"github.com/mnemosyne/mnemosyne/config"
	"github.com/mnemosyne/mnemosyne/daglogger"
	mnevent "github.com/mnemosyne/mnemosyne/event"
	"github.com/mnemosyne/mnemosyne/internal/adminserver"
	"github.com/mnemosyne/mnemosyne/internal/flags"
	"github.com/mnemosyne/mnemosyne/replication"
	"github.com/mnemosyne/mnemosyne/store"
	syncadapter "github.com/mnemosyne/mnemosyne/sync"
	"github.com/mnemosyne/mnemosyne/transport"
	"github.com/mnemosyne/mnemosyne/transport/memtransport"
	"github.com/mnemosyne/mnemosyne/validator/fakevalidator"
)

const clientIdentifier = "mnemosyne-logger"

var app = flags.NewApp("the mnemosyne DAG logger command line interface")

func init() {
	app.Flags = appFlags
	app.Before = setupLogging
	app.Action = runLogger
	app.Commands = []*cli.Command{
		debugCommand,
		statusCommand,
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// components bundles every wired service a run needs to shut down cleanly.
type components struct {
	backend   *store.Backend
	transport transport.Transport
	logger    *daglogger.Logger
	iface     *mnevent.Interface
	admin     *adminserver.Server
}

// build constructs every component per the resolved configuration, short of
// starting the reactor loop (logger.Start / iface.Start / admin.ListenAndServe).
func build(cfg config.Config) (*components, error) {
	var backend *store.Backend
	switch cfg.DatabaseType {
	case "durable":
		b, err := store.OpenDurable(cfg.DatabasePath, cfg.DatabaseCache, cfg.DatabaseHandles, cfg.SeqNoBackupFreq)
		if err != nil {
			return nil, fmt.Errorf("open durable store: %w", err)
		}
		backend = b
	default:
		backend = store.OpenMemory()
	}

	// Mnemosyne only ever talks to the abstract transport.Transport
	// capability (spec.md §1's external collaborator). No concrete
	// NDN-like substrate ships in this repository, so the logger runs
	// against the in-memory fake every test uses, standing in for
	// whatever production substrate an operator wires in behind the
	// same interface.
	net := memtransport.NewNetwork()
	tr := net.NewTransport()

	signer := fakevalidator.AcceptAll{}
	val := fakevalidator.AcceptAll{}

	adapter := syncadapter.New(backend, tr, signer, cfg.HintPrefix,
		cfg.RecordFetchRetries, cfg.HintedFetchRetries, 5*time.Second,
		50*time.Millisecond, 500*time.Millisecond)

	repl := replication.New(cfg.PeerPrefix, cfg.MaxCountedReplication)

	logger := daglogger.New(cfg.PeerPrefix, cfg.PrecedingRecordNum, cfg.MaxSelfReRefCount,
		cfg.RecordFetchRetries, backend, adapter, tr, val, repl, nil)

	iface := mnevent.New(logger, val, cfg.SeenEventTTL(), cfg.SelfInsertResetFreq,
		cfg.InsertBackoffMin(), cfg.InsertBackoffMax(), cfg.StartupDelay())
	if err := iface.SetFilter(cfg.EventFilter); err != nil {
		return nil, fmt.Errorf("compile event_filter: %w", err)
	}
	iface.SetContentType(cfg.ContentType)
	logger.SetOnRecord(iface.OnRecord)

	return &components{backend: backend, transport: tr, logger: logger, iface: iface}, nil
}

func runLogger(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	c, err := build(cfg)
	if err != nil {
		return err
	}
	defer c.backend.Close()

	if err := c.iface.Restore(c.backend); err != nil {
		log.Warn("mnemosyne-logger: failed to restore seen-event set", "err", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.logger.Start(runCtx); err != nil {
		return fmt.Errorf("start dag logger: %w", err)
	}
	c.iface.Start(c.transport, cfg.PSInterfacePrefixes)

	if addr := ctx.String(adminAddrFlag.Name); addr != "" {
		secret, err := loadJWTSecret(ctx.String(adminSecretFlag.Name))
		if err != nil {
			return fmt.Errorf("load admin jwt secret: %w", err)
		}
		c.admin = adminserver.New(cfg.PeerPrefix, c.logger, c.iface, secret)
		go func() {
			if err := c.admin.ListenAndServe(addr); err != nil {
				log.Error("mnemosyne-logger: admin server exited", "err", err)
			}
		}()
	}

	log.Info(clientIdentifier+": running", "self", cfg.PeerPrefix, "db", cfg.DatabaseType)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig

	log.Info("mnemosyne-logger: shutting down")
	if c.admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = c.admin.Close(shutdownCtx)
	}
	if err := c.iface.Persist(c.backend); err != nil {
		log.Warn("mnemosyne-logger: failed to persist seen-event set", "err", err)
	}
	return nil
}

func loadJWTSecret(path string) ([32]byte, error) {
	var secret [32]byte
	if path == "" {
		return secret, fmt.Errorf("admin.jwtsecret is required when admin.addr is set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return secret, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return secret, fmt.Errorf("jwt secret must be hex-encoded: %w", err)
	}
	if len(raw) != 32 {
		return secret, fmt.Errorf("jwt secret must be 32 bytes, got %d", len(raw))
	}
	copy(secret[:], raw)
	return secret, nil
}

var debugCommand = &cli.Command{
	Name:  "debug",
	Usage: "Diagnostics for a logger instance",
	Subcommands: []*cli.Command{
		{
			Name:  "memsize",
			Usage: "Report live heap usage of the record store and replication counter",
			Flags: appFlags,
			Action: func(ctx *cli.Context) error {
				cfg, err := loadConfig(ctx)
				if err != nil {
					return err
				}
				c, err := build(cfg)
				if err != nil {
					return err
				}
				defer c.backend.Close()

				fmt.Println("record store:")
				fmt.Println(memsize.Scan(c.backend).Report())
				if repl := c.logger.ReplicationCounter(); repl != nil {
					fmt.Println("replication counter:")
					fmt.Println(memsize.Scan(repl).Report())
				}
				return nil
			},
		},
	},
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Dial a running logger's admin HTTP API and print its status",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "Admin API base URL, e.g. http://127.0.0.1:8645", Required: true},
		&cli.StringFlag{Name: "jwtsecret", Usage: "Path to the hex-encoded 32-byte JWT secret", Required: true},
	},
	Action: func(ctx *cli.Context) error {
		secret, err := loadJWTSecret(ctx.String("jwtsecret"))
		if err != nil {
			return err
		}
		body, err := fetchStatus(ctx.String("addr"), secret)
		if err != nil {
			return err
		}
		fmt.Println(body)
		return nil
	},
}
