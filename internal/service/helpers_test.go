package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/crossarb/internal/cache/memory"
	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/store/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	stores domain.Stores
	bus    *memory.Bus
	quotes *memory.QuoteCache
}

func newFixture() fixture {
	return fixture{
		stores: memstore.New().Stores(),
		bus:    memory.NewBus(0),
		quotes: memory.NewQuoteCache(),
	}
}

func (f fixture) seed(t *testing.T, events ...domain.Event) []domain.Event {
	t.Helper()
	out, err := f.stores.Events.UpsertBatch(context.Background(), events)
	require.NoError(t, err)
	return out
}

func (fixture) now() time.Time { return time.Now() }
