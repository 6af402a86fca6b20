package chain

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	apperrors "github.com/wallet-scanner/internal/errors"
	"github.com/wallet-scanner/internal/logging"
	"github.com/wallet-scanner/internal/types"
)

// BalanceHandler receives pushed native balance updates in SOL.
type BalanceHandler func(address string, balanceSOL float64)

// SubscriptionManager multiplexes account-change subscriptions over one
// websocket connection. Handles returned to callers are opaque.
type SubscriptionManager struct {
	wsEndpoint string
	log        *logging.Logger

	mu     sync.Mutex
	conn   *ws.Client
	active map[string]context.CancelFunc
}

// NewSubscriptionManager creates a manager for the given websocket endpoint.
// The connection is dialed lazily on first subscribe.
func NewSubscriptionManager(wsEndpoint string, log *logging.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		wsEndpoint: wsEndpoint,
		log:        log,
		active:     make(map[string]context.CancelFunc),
	}
}

// Subscribe starts pushing native balance changes for the address to the
// handler and returns an opaque subscription handle.
func (m *SubscriptionManager) Subscribe(ctx context.Context, address string, handler BalanceHandler) (string, error) {
	owner, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return "", apperrors.NewInvalidAddressError(address)
	}

	m.mu.Lock()
	if m.conn == nil {
		conn, err := ws.Connect(ctx, m.wsEndpoint)
		if err != nil {
			m.mu.Unlock()
			return "", apperrors.NewProviderError("solana-ws", err)
		}
		m.conn = conn
	}
	conn := m.conn
	m.mu.Unlock()

	sub, err := conn.AccountSubscribe(owner, rpc.CommitmentConfirmed)
	if err != nil {
		return "", apperrors.NewProviderError("solana-ws", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	handle := uuid.NewString()

	m.mu.Lock()
	m.active[handle] = cancel
	m.mu.Unlock()

	go func() {
		defer sub.Unsubscribe()
		for {
			result, err := sub.Recv(subCtx)
			if err != nil {
				if subCtx.Err() == nil {
					m.log.WithError(err).WithField("address", address).
						Warn("account subscription closed by provider")
				}
				return
			}
			if result == nil {
				continue
			}
			handler(address, float64(result.Value.Lamports)/types.LamportsPerSol)
		}
	}()

	return handle, nil
}

// Unsubscribe stops the subscription identified by handle. Unknown handles
// are a no-op.
func (m *SubscriptionManager) Unsubscribe(handle string) {
	m.mu.Lock()
	cancel, ok := m.active[handle]
	if ok {
		delete(m.active, handle)
	}
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Close tears down all active subscriptions and the websocket connection.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for handle, cancel := range m.active {
		cancel()
		delete(m.active, handle)
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
