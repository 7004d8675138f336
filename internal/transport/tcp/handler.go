package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"warnet-server-go/internal/domain/eventbus"
	"warnet-server-go/internal/domain/ledger"
	"warnet-server-go/internal/domain/registry"
	"warnet-server-go/internal/domain/session"
	platformerrors "warnet-server-go/internal/platform/errors"
	"warnet-server-go/internal/platform/logging"
)

// Handler drives one terminal connection: identify handshake, request loop,
// settlement on the way out.
type Handler struct {
	ledger          *ledger.Service
	registry        *registry.Registry
	bus             *eventbus.Bus
	logger          *logging.Logger
	identifyTimeout time.Duration
}

// NewHandler wires the connection handler.
func NewHandler(svc *ledger.Service, reg *registry.Registry, bus *eventbus.Bus, logger *logging.Logger, identifyTimeout time.Duration) *Handler {
	if identifyTimeout <= 0 {
		identifyTimeout = 5 * time.Second
	}
	return &Handler{
		ledger:          svc,
		registry:        reg,
		bus:             bus,
		logger:          logger,
		identifyTimeout: identifyTimeout,
	}
}

// Handle owns the connection for its whole lifetime. The in-flight session,
// if any, is settled before the registry entry is dropped, regardless of how
// the connection ends.
func (h *Handler) Handle(ctx context.Context, conn *Connection) {
	defer conn.Close()

	ident, err := h.identify(conn)
	if err != nil {
		h.logger.WarnTag("TCP", "identification failed",
			"conn_id", conn.ID(), "remote", conn.RemoteIP(), "error", err)
		return
	}

	clientIP := ident.ClientIP
	if clientIP == "" {
		clientIP = conn.RemoteIP()
	}

	machine := session.New(h.ledger, conn.ID(), clientIP)
	h.registry.Register(conn.ID(), clientIP, ident.Hostname)
	defer h.registry.Remove(conn.ID())
	defer h.abort(machine, conn, clientIP)

	// Server shutdown unblocks the pending read by closing the socket.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	h.serve(ctx, conn, machine, clientIP)
}

// identify performs the handshake: send the token, read the bounded reply.
func (h *Handler) identify(conn *Connection) (Identification, error) {
	if err := conn.WriteLine([]byte(IdentifyToken)); err != nil {
		return Identification{}, err
	}
	line, err := conn.ReadLine(h.identifyTimeout)
	if err != nil {
		return Identification{}, err
	}
	var ident Identification
	if err := json.Unmarshal(line, &ident); err != nil {
		return Identification{}, err
	}
	return ident, nil
}

func (h *Handler) serve(ctx context.Context, conn *Connection, machine *session.Machine, clientIP string) {
	for {
		line, err := conn.ReadLine(0)
		if err != nil {
			if ctx.Err() == nil && !conn.IsClosed() {
				h.logger.DebugTag("TCP", "connection read ended",
					"conn_id", conn.ID(), "client_ip", clientIP, "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			h.logger.WarnTag("TCP", "malformed request, closing connection",
				"conn_id", conn.ID(), "client_ip", clientIP, "error", err)
			return
		}

		switch req.Command {
		case CommandLogin:
			if !h.handleLogin(ctx, conn, machine, req) {
				return
			}
		case CommandStop:
			h.handleStop(ctx, conn, machine, req, clientIP)
			return
		default:
			h.logger.WarnTag("TCP", "unknown command, closing connection",
				"conn_id", conn.ID(), "client_ip", clientIP, "command", req.Command)
			return
		}
	}
}

// handleLogin answers the login request. Rejections keep the connection
// open so the terminal can retry; internal failures close it. The return
// value reports whether the loop should continue.
func (h *Handler) handleLogin(ctx context.Context, conn *Connection, machine *session.Machine, req Request) bool {
	hours, err := machine.Login(ctx, req.Username, req.Password, req.PCType)
	if err != nil {
		if isRejection(err) {
			_ = conn.WriteJSON(errorResponse(platformerrors.Reason(err)))
			return true
		}
		h.logger.ErrorTag("TCP", "login failed",
			"conn_id", conn.ID(), "username", req.Username, "error", err)
		_ = conn.WriteJSON(errorResponse("internal error"))
		return false
	}

	h.registry.AttachSession(conn.ID(), req.Username, req.PCType, machine.StartTime())
	if err := conn.WriteJSON(balanceResponse(hours)); err != nil {
		return false
	}
	return true
}

// handleStop settles the session and acknowledges before the connection
// closes. The settlement happens before the reply so the terminal only
// unlocks after the debit is durable.
func (h *Handler) handleStop(ctx context.Context, conn *Connection, machine *session.Machine, req Request, clientIP string) {
	username := machine.Username()
	tier := machine.Tier()
	start := machine.StartTime()

	minutes, err := machine.Stop(ctx)
	if err != nil {
		if platformerrors.IsKind(err, platformerrors.KindSession) {
			_ = conn.WriteJSON(errorResponse(platformerrors.Reason(err)))
			return
		}
		h.logger.ErrorTag("TCP", "settlement failed",
			"conn_id", conn.ID(), "username", username, "error", err)
		_ = conn.WriteJSON(errorResponse("internal error"))
		return
	}

	h.registry.DetachSession(conn.ID())
	// The event carries the same identity the session log row records.
	h.publishSettled(conn.ID(), clientIP, username, tier, start, minutes)
	h.logger.InfoTag("TCP", "session stopped",
		"conn_id", conn.ID(), "username", username, "minutes", minutes,
		"reported_remaining_seconds", req.RemainingSeconds)
	_ = conn.WriteJSON(successResponse())
}

// abort settles a session torn down without an explicit stop.
func (h *Handler) abort(machine *session.Machine, conn *Connection, clientIP string) {
	username := machine.Username()
	tier := machine.Tier()
	start := machine.StartTime()

	// The connection context may already be cancelled; the settlement write
	// still has to land.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	minutes, settled, err := machine.Abort(ctx)
	if err != nil {
		h.logger.ErrorTag("TCP", "settlement on disconnect failed",
			"conn_id", conn.ID(), "username", username, "error", err)
		return
	}
	if !settled {
		return
	}
	h.publishSettled(conn.ID(), clientIP, username, tier, start, minutes)
	h.logger.InfoTag("TCP", "session settled on disconnect",
		"conn_id", conn.ID(), "username", username, "minutes", minutes)
}

func (h *Handler) publishSettled(connID, clientIP, username, tier string, start time.Time, minutes int) {
	if h.bus == nil {
		return
	}
	h.bus.PublishAsync(eventbus.EventSessionSettled, eventbus.SessionEvent{
		ConnID:          connID,
		ClientIP:        clientIP,
		Username:        username,
		Tier:            tier,
		StartTime:       start,
		DurationMinutes: minutes,
	})
}

// isRejection classifies errors whose text is meant for the terminal.
func isRejection(err error) bool {
	var mismatch *ledger.TierMismatchError
	return errors.Is(err, ledger.ErrInvalidCredentials) ||
		errors.Is(err, ledger.ErrNoBalance) ||
		errors.Is(err, ledger.ErrAccountInUse) ||
		errors.As(err, &mismatch) ||
		platformerrors.IsKind(err, platformerrors.KindSession)
}
