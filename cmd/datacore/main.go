// Command datacore is a thin demonstration harness wiring the library
// packages together: generate a key pair, append blocks, read them back,
// and replicate a core over TCP -- the connective tissue every production
// repository in this corpus ships alongside its library code.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MODULUSREBUS/libdata/core"
	"github.com/MODULUSREBUS/libdata/discovery"
	"github.com/MODULUSREBUS/libdata/internal/log"
	"github.com/MODULUSREBUS/libdata/noise"
	"github.com/MODULUSREBUS/libdata/protocol"
	"github.com/MODULUSREBUS/libdata/replication"
	"github.com/MODULUSREBUS/libdata/signer"
	"github.com/MODULUSREBUS/libdata/store/disk"
)

func main() {
	app := &cli.App{
		Name:  "datacore",
		Usage: "append-only verifiable log and replication demo",
		Commands: []*cli.Command{
			keygenCmd(),
			appendCmd(),
			getCmd(),
			serveCmd(),
			syncCmd(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Error("datacore: fatal", "error", err)
		os.Exit(1)
	}
}

func dirFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "dir", Usage: "backing store directory", Required: true}
}

func keyFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "secret-key", Usage: "hex-encoded Ed25519 secret key (64 bytes)"}
}

func keygenCmd() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "generate a new signing key pair",
		Action: func(c *cli.Context) error {
			kp, err := signer.Generate()
			if err != nil {
				return err
			}
			fmt.Printf("public-key: %s\n", hex.EncodeToString(kp.Public))
			fmt.Printf("secret-key: %s\n", hex.EncodeToString(kp.Secret))
			return nil
		},
	}
}

func loadKeyPair(c *cli.Context) (signer.KeyPair, error) {
	secHex := c.String("secret-key")
	if secHex == "" {
		return signer.Generate()
	}
	sec, err := hex.DecodeString(secHex)
	if err != nil {
		return signer.KeyPair{}, fmt.Errorf("secret-key: %w", err)
	}
	priv := ed25519.PrivateKey(sec)
	return signer.KeyPair{Public: priv.Public().(ed25519.PublicKey), Secret: priv}, nil
}

func openCore(c *cli.Context) (*core.Core, error) {
	kp, err := loadKeyPair(c)
	if err != nil {
		return nil, err
	}
	st, err := disk.Open(c.String("dir"))
	if err != nil {
		return nil, err
	}
	return core.Open(context.Background(), st, kp)
}

func appendCmd() *cli.Command {
	return &cli.Command{
		Name:      "append",
		Usage:     "append one block of data",
		ArgsUsage: "<data>",
		Flags:     []cli.Flag{dirFlag(), keyFlag()},
		Action: func(c *cli.Context) error {
			cr, err := openCore(c)
			if err != nil {
				return err
			}
			if err := cr.Append(context.Background(), []byte(c.Args().First()), nil); err != nil {
				return err
			}
			fmt.Printf("appended block %d\n", cr.Len()-1)
			return nil
		},
	}
}

func getCmd() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "read one block",
		ArgsUsage: "<index>",
		Flags:     []cli.Flag{dirFlag(), keyFlag()},
		Action: func(c *cli.Context) error {
			cr, err := openCore(c)
			if err != nil {
				return err
			}
			var idx uint32
			if _, err := fmt.Sscanf(c.Args().First(), "%d", &idx); err != nil {
				return fmt.Errorf("get: invalid index: %w", err)
			}
			data, _, err := cr.Get(context.Background(), idx)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func keepaliveFlag() *cli.Uint64Flag {
	return &cli.Uint64Flag{Name: "keepalive-ms", Usage: "idle read timeout in milliseconds, 0 to disable"}
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "listen and replicate this core to one connecting peer",
		Flags: []cli.Flag{dirFlag(), keyFlag(), keepaliveFlag(), &cli.StringFlag{Name: "addr", Value: ":7000"}},
		Action: func(c *cli.Context) error {
			cr, err := openCore(c)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", c.String("addr"))
			if err != nil {
				return err
			}
			defer ln.Close()
			fmt.Printf("listening on %s\n", ln.Addr())

			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			defer conn.Close()

			static, err := noise.GenerateStaticKeyPair()
			if err != nil {
				return err
			}
			cfg := protocol.DefaultConfig(false, static)
			cfg.KeepaliveMs = c.Uint64("keepalive-ms")
			proto := protocol.New(conn, cfg)
			if _, err := proto.RunHandshake(context.Background()); err != nil {
				return err
			}

			dk, err := discovery.Key(cr.PublicKey())
			if err != nil {
				return err
			}
			link := replication.NewLink(proto)
			link.Commands() <- replication.Command{
				Kind:         replication.CommandOpen,
				DiscoveryKey: dk[:],
				PublicKey:    cr.PublicKey(),
				Replica:      replication.NewCoreReplica(cr),
			}
			return link.Run(context.Background())
		},
	}
}

func syncCmd() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "dial a peer and replicate a public key's core into this store",
		ArgsUsage: "<public-key-hex>",
		Flags:     []cli.Flag{dirFlag(), keepaliveFlag(), &cli.StringFlag{Name: "addr", Value: "localhost:7000"}},
		Action: func(c *cli.Context) error {
			pub, err := hex.DecodeString(c.Args().First())
			if err != nil {
				return fmt.Errorf("sync: public key: %w", err)
			}

			st, err := disk.Open(c.String("dir"))
			if err != nil {
				return err
			}
			cr, err := core.Open(context.Background(), st, signer.KeyPair{Public: pub})
			if err != nil {
				return err
			}

			conn, err := net.Dial("tcp", c.String("addr"))
			if err != nil {
				return err
			}
			defer conn.Close()

			static, err := noise.GenerateStaticKeyPair()
			if err != nil {
				return err
			}
			cfg := protocol.DefaultConfig(true, static)
			cfg.KeepaliveMs = c.Uint64("keepalive-ms")
			proto := protocol.New(conn, cfg)
			if _, err := proto.RunHandshake(context.Background()); err != nil {
				return err
			}

			dk, err := discovery.Key(pub)
			if err != nil {
				return err
			}
			link := replication.NewLink(proto)
			link.Commands() <- replication.Command{
				Kind:         replication.CommandOpen,
				DiscoveryKey: dk[:],
				PublicKey:    pub,
				Replica:      replication.NewCoreReplica(cr),
			}
			return link.Run(context.Background())
		},
	}
}
