// Klingnet stake verifier.
//
// Opens the block index of a network, checks the best chain against the
// hardened checkpoints and reports the last checkpoint, the estimated
// verification progress and the next block template.
//
// Usage:
//
//	stakeverify [--network=regtest --generate=N]  Verify the local index
//	stakeverify --metrics=:9100                   Keep serving metrics after verifying
//	stakeverify --help                            Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-stake/config"
	"github.com/Klingon-tech/klingnet-stake/internal/node"
	"github.com/Klingon-tech/klingnet-stake/pkg/tx"
)

func main() {
	cfg, _, err := config.Load(os.Args[1:])
	if err != nil {
		if config.IsHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Generate > 0 {
		if err := n.Generate(ctx, int(cfg.Generate), tx.Script{0x51}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			n.Stop()
			os.Exit(1)
		}
	}

	code := 0
	if err := n.Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "Checkpoint verification failed: %v\n", err)
		code = 2
	}
	printStatus(n.Status())

	if cfg.MetricsAddr != "" && code == 0 {
		<-ctx.Done()
	}
	n.Stop()
	os.Exit(code)
}

func printStatus(st node.Status) {
	fmt.Printf("Network:           %s\n", st.Network)
	fmt.Printf("Tip:               %d %s (%s)\n", st.Tip.Height, st.Tip.Hash, time.Unix(st.Tip.Time, 0).UTC().Format(time.RFC3339))
	fmt.Printf("Stake modifier:    %#016x (checksum %#08x)\n", st.Tip.StakeModifier, st.Tip.ModifierChecksum)
	if st.LastCheckpoint != nil {
		fmt.Printf("Last checkpoint:   %d %s\n", st.LastCheckpoint.Height, st.LastCheckpoint.Hash)
	} else {
		fmt.Printf("Last checkpoint:   none\n")
	}
	fmt.Printf("Progress:          %.2f%%\n", st.Progress*100)
	fmt.Printf("Next block:        height %d, %s, bits %#08x, reward %d\n",
		st.Next.Height, st.Next.Type, st.Next.Bits, st.Next.Reward)
}
