package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/launchpad/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.objects[path] = b
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type staticEvents []domain.Event

func (s staticEvents) ListEventsBetween(_ context.Context, since, until time.Time) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range s {
		if !e.CreatedAt.Before(since) && e.CreatedAt.Before(until) {
			out = append(out, e)
		}
	}
	return out, nil
}

type auditLog struct {
	entries []string
}

func (a *auditLog) Log(_ context.Context, event string, _ map[string]any) error {
	a.entries = append(a.entries, event)
	return nil
}

func (a *auditLog) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchivePath(t *testing.T) {
	until := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "events/2026/10/18/1792281600.jsonl", ArchivePath(until))
}

func TestArchiveEvents(t *testing.T) {
	ctx := context.Background()
	until := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	since := until.Add(-time.Hour)

	ev := func(id string, at time.Time) domain.Event {
		return domain.Event{
			ID:             id,
			Kind:           domain.EventBuy,
			Market:         common.HexToAddress("0x01"),
			NativeAmount:   big.NewInt(1_000),
			TokenAmount:    new(big.Int).Mul(big.NewInt(3), domain.WAD),
			Fee:            big.NewInt(3),
			Refund:         big.NewInt(0),
			Price:          big.NewInt(7),
			TotalSupply:    big.NewInt(9),
			ReserveBalance: big.NewInt(11),
			CreatedAt:      at,
		}
	}
	events := staticEvents{
		ev("a", since.Add(-time.Minute)),
		ev("b", since),
		ev("c", until.Add(-time.Second)),
		ev("d", until),
	}

	blobs := &memBlobs{objects: map[string][]byte{}}
	audit := &auditLog{}
	a := NewArchiver(events, blobs, audit).WithReader(blobs)

	n, err := a.ArchiveEvents(ctx, since, until)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"archive.events"}, audit.entries)

	body := blobs.objects[ArchivePath(until)]
	require.NotEmpty(t, body)
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		var line domain.EventJSON
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		ids = append(ids, line.ID)
		assert.Equal(t, "3000000000000000000", line.TokenAmount)
	}
	assert.Equal(t, []string{"b", "c"}, ids)

	n, err = a.ArchiveEvents(ctx, since, until)
	require.NoError(t, err)
	assert.Zero(t, n, "window already exported")
	assert.Len(t, audit.entries, 1)

	n, err = a.ArchiveEvents(ctx, until.Add(time.Hour), until.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
