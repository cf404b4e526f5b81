package mesh

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pion/stun"
	"github.com/pion/webrtc/v4"
)

const (
	// connectivityTimeout общий бюджет диагностики связности
	connectivityTimeout = 10 * time.Second
	// stunProbeTimeout таймаут одного STUN-запроса
	stunProbeTimeout = 5 * time.Second
)

// ConnectivityReport результат диагностики STUN/TURN связности.
// Диагностический снимок для troubleshooting: не персистится,
// каждый запуск собирает отчет заново.
type ConnectivityReport struct {
	// ExternalAddr внешний адрес узла, если STUN его открыл
	ExternalAddr string `json:"external_addr,omitempty"`
	// Candidates собранные ICE-кандидаты в порядке обнаружения
	Candidates []string `json:"candidates"`
	// STUNOk найден хотя бы один server-reflexive кандидат
	STUNOk bool `json:"stun_ok"`
	// TURNOk найден хотя бы один relay кандидат
	TURNOk bool `json:"turn_ok"`
}

// TestConnectivity проверяет достижимость STUN/TURN серверов: собирает
// ICE-кандидатов через пробное WebRTC-соединение и классифицирует их.
// Выполняется не дольше connectivityTimeout.
func TestConnectivity(ctx context.Context, relays []RelayDescriptor) (*ConnectivityReport, error) {
	ctx, cancel := context.WithTimeout(ctx, connectivityTimeout)
	defer cancel()

	servers := make([]webrtc.ICEServer, 0, len(relays))
	for _, relay := range relays {
		servers = append(servers, webrtc.ICEServer{
			URLs:       relay.URLs,
			Username:   relay.Username,
			Credential: relay.Credential,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("failed to create probe connection: %w", err)
	}
	defer pc.Close()

	var (
		report     ConnectivityReport
		reportMu   sync.Mutex
		gatherDone = make(chan struct{})
	)

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			// nil-кандидат означает конец сбора
			close(gatherDone)
			return
		}

		reportMu.Lock()
		defer reportMu.Unlock()

		report.Candidates = append(report.Candidates, candidate.String())
		switch candidate.Typ {
		case webrtc.ICECandidateTypeSrflx:
			report.STUNOk = true
			if report.ExternalAddr == "" {
				report.ExternalAddr = net.JoinHostPort(candidate.Address, fmt.Sprint(candidate.Port))
			}
		case webrtc.ICECandidateTypeRelay:
			report.TURNOk = true
		}
	})

	// Data channel нужен, чтобы offer содержал медиасекцию и ICE запустился
	if _, err := pc.CreateDataChannel("probe", nil); err != nil {
		return nil, fmt.Errorf("failed to create probe channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	select {
	case <-gatherDone:
	case <-ctx.Done():
		// Частичный отчет полезнее ошибки: возвращаем что собрали
	}

	reportMu.Lock()
	defer reportMu.Unlock()
	result := report
	result.Candidates = append([]string(nil), report.Candidates...)
	return &result, nil
}

// ProbeSTUN выполняет один STUN Binding-запрос и возвращает внешний
// адрес узла. Быстрая проверка без подъема WebRTC-стека.
func ProbeSTUN(ctx context.Context, server string) (*net.UDPAddr, error) {
	server = strings.TrimPrefix(server, "stun:")

	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve STUN server: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial STUN server: %w", err)
	}
	defer conn.Close()

	// Разрываем чтение при отмене контекста
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	deadline := time.Now().Add(stunProbeTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	msg, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to build binding request: %w", err)
	}
	if _, err := msg.WriteTo(conn); err != nil {
		return nil, fmt.Errorf("failed to send binding request: %w", err)
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read binding response: %w", err)
	}

	res := new(stun.Message)
	res.Raw = buf[:n]
	if err := res.Decode(); err != nil {
		return nil, fmt.Errorf("failed to decode binding response: %w", err)
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(res); err != nil {
		// Старые серверы отвечают MAPPED-ADDRESS
		var mapped stun.MappedAddress
		if err := mapped.GetFrom(res); err != nil {
			return nil, fmt.Errorf("no mapped address in response: %w", err)
		}
		return &net.UDPAddr{IP: mapped.IP, Port: mapped.Port}, nil
	}
	return &net.UDPAddr{IP: xorAddr.IP, Port: xorAddr.Port}, nil
}
