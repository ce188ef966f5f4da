package homekit

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/brutella/hap"
	haccessory "github.com/brutella/hap/accessory"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/accessory"
	"github.com/anicoll/arduino-bridge/internal/pkg/config"
)

// restartDelay batches the registrations of one discovery pass into a
// single server restart.
const restartDelay = 2 * time.Second

var ErrUnknownAccessory = errors.New("accessory was not created by this host")

type host struct {
	cfg    *config.HomeKitConfig
	bridge *haccessory.Bridge
	store  hap.Store
	logger *zap.Logger

	mu          sync.Mutex
	accessories map[uint64]*hkAccessory
	changed     chan struct{}
}

// New creates the HomeKit bridge that registered accessories are served from.
func New(cfg *config.HomeKitConfig) *host {
	bridge := haccessory.NewBridge(haccessory.Info{
		Name:         cfg.BridgeName,
		Manufacturer: accessory.Manufacturer,
		Model:        "IoTCloudBridge",
		SerialNumber: slug.Make(cfg.BridgeName),
	})
	bridge.A.Id = 1

	return &host{
		cfg:         cfg,
		bridge:      bridge,
		store:       hap.NewFsStore(filepath.Join(cfg.StoragePath, slug.Make(cfg.BridgeName))),
		logger:      zap.L(),
		accessories: map[uint64]*hkAccessory{},
		changed:     make(chan struct{}, 1),
	}
}

func (h *host) NewAccessory(info accessory.Info) accessory.Accessory {
	return newAccessory(info)
}

func (h *host) Register(a accessory.Accessory) error {
	ha, ok := a.(*hkAccessory)
	if !ok {
		return ErrUnknownAccessory
	}
	h.mu.Lock()
	h.accessories[accessoryID(ha.Name())] = ha
	h.mu.Unlock()
	h.logger.Info("registered accessory", zap.String("accessory", ha.Name()))
	h.notify()
	return nil
}

func (h *host) Update(a accessory.Accessory) error {
	if _, ok := a.(*hkAccessory); !ok {
		return ErrUnknownAccessory
	}
	h.notify()
	return nil
}

func (h *host) Unregister(a accessory.Accessory) error {
	ha, ok := a.(*hkAccessory)
	if !ok {
		return ErrUnknownAccessory
	}
	h.mu.Lock()
	delete(h.accessories, accessoryID(ha.Name()))
	h.mu.Unlock()
	h.logger.Info("unregistered accessory", zap.String("accessory", ha.Name()))
	h.notify()
	return nil
}

func (h *host) notify() {
	select {
	case h.changed <- struct{}{}:
	default:
	}
}

// snapshot returns the registered HAP accessories ordered by id.
func (h *host) snapshot() []*haccessory.A {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*haccessory.A, 0, len(h.accessories))
	for _, ha := range h.accessories {
		ha.mu.Lock()
		if ha.a != nil {
			out = append(out, ha.a)
		}
		ha.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b *haccessory.A) int {
		switch {
		case a.Id < b.Id:
			return -1
		case a.Id > b.Id:
			return 1
		}
		return 0
	})
	return out
}

// Run serves the bridge until ctx is done, restarting the HAP server whenever
// the set of accessories changes.
func (h *host) Run(ctx context.Context) error {
	for {
		srvCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)

		accs := h.snapshot()
		srv, err := hap.NewServer(h.store, h.bridge.A, accs...)
		if err != nil {
			cancel()
			return err
		}
		srv.Pin = h.cfg.Pin
		srv.Addr = h.cfg.Addr

		h.logger.Info("starting homekit server", zap.String("addr", h.cfg.Addr), zap.Int("accessories", len(accs)))
		go func() {
			errCh <- srv.ListenAndServe(srvCtx)
		}()

		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			return nil
		case err := <-errCh:
			cancel()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-h.changed:
			if !h.settle(ctx) {
				cancel()
				<-errCh
				return nil
			}
			cancel()
			<-errCh
		}
	}
}

// settle waits until no change arrived for restartDelay.
func (h *host) settle(ctx context.Context) bool {
	t := time.NewTimer(restartDelay)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-h.changed:
			t.Reset(restartDelay)
		case <-t.C:
			return true
		}
	}
}
