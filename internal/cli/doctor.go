package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/mesh"
)

// stunProbeBudget таймаут одного быстрого binding-запроса
const stunProbeBudget = 3 * time.Second

// RunDoctor проверяет STUN/TURN связность и печатает отчет
func (c *Cli) RunDoctor(ctx context.Context) error {
	relays := mesh.DefaultRelays()

	// Быстрые binding-запросы к каждому STUN-серверу до подъема
	// WebRTC-стека: сразу видно, какой из серверов не отвечает
	fmt.Fprintln(c.out, "STUN binding probes:")
	for _, relay := range relays {
		for _, serverURL := range relay.URLs {
			if !strings.HasPrefix(serverURL, "stun:") {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, stunProbeBudget)
			addr, err := mesh.ProbeSTUN(probeCtx, serverURL)
			cancel()
			if err != nil {
				fmt.Fprintf(c.out, "  %s: %v\n", serverURL, err)
				continue
			}
			fmt.Fprintf(c.out, "  %s: external address %s\n", serverURL, addr)
		}
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Checking connectivity, this may take a few seconds...")
	report, err := mesh.TestConnectivity(ctx, relays)
	if err != nil {
		return fmt.Errorf("connectivity check failed: %w", err)
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "STUN: %s\n", okOrFail(report.STUNOk))
	fmt.Fprintf(c.out, "TURN: %s\n", okOrFail(report.TURNOk))
	if report.ExternalAddr != "" {
		fmt.Fprintf(c.out, "External address: %s\n", report.ExternalAddr)
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "ICE candidates (%d):\n", len(report.Candidates))
	for _, candidate := range report.Candidates {
		fmt.Fprintf(c.out, "  %s\n", candidate)
	}

	if !report.STUNOk {
		fmt.Fprintln(c.out)
		fmt.Fprintln(c.out, "No server-reflexive candidates: STUN servers are unreachable,")
		fmt.Fprintln(c.out, "peers behind NAT will not be able to connect directly.")
	}
	if !report.TURNOk {
		fmt.Fprintln(c.out)
		fmt.Fprintf(c.out, "No relay candidates: configure a TURN server via %s,\n", mesh.EnvTURNURL)
		fmt.Fprintf(c.out, "%s and %s for restrictive networks.\n", mesh.EnvTURNUsername, mesh.EnvTURNCredential)
	}
	return nil
}

func okOrFail(ok bool) string {
	if ok {
		return "ok"
	}
	return "unreachable"
}
