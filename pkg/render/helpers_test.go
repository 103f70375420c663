package render

import (
	"math"
	"sync"

	"github.com/Resonate-Protocol/admsync/pkg/adm"
)

type lookup map[uint64]*adm.Item

func (l lookup) Item(id uint64) (*adm.Item, bool) {
	it, ok := l[id]
	return it, ok
}

// fakeItems is an ItemSource over a fixed item map
type fakeItems struct {
	mu       sync.RWMutex
	items    lookup
	settings *adm.Settings
}

func newFakeItems(items ...*adm.Item) *fakeItems {
	f := &fakeItems{items: lookup{}, settings: adm.NewSettings(adm.DefaultConfig())}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeItems) View(fn func(adm.ItemLookup)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn(f.items)
}

func (f *fakeItems) Settings() *adm.Settings {
	return f.settings
}

func rawBlock(id uint64, typ adm.TypeDef, rtime float64, channels []int, programmes ...int) adm.RawBlock {
	return adm.RawBlock{
		ID:               id,
		Type:             typ,
		Name:             "item",
		ChannelNums:      channels,
		AudioEndTime:     math.Inf(1),
		ProgrammeIDs:     programmes,
		RTime:            rtime,
		Duration:         1,
		Distance:         1,
		AbsoluteDistance: 1,
		Gain:             1,
	}
}

// newItem builds an item with one block per start time
func newItem(id uint64, typ adm.TypeDef, channels []int, programmes []int, starts ...float64) *adm.Item {
	it := adm.NewItem(rawBlock(id, typ, 0, channels, programmes...), 48000)
	for _, s := range starts {
		it.Append(rawBlock(id, typ, s, channels, programmes...))
	}
	return it
}

type sentBlock struct {
	group    Group
	index    int
	channels []int
	block    adm.ProcessedBlock
}

// recordingSink accepts up to limit blocks (unlimited when negative)
type recordingSink struct {
	limit int
	sent  []sentBlock
}

func (s *recordingSink) AddMetadata(group Group, index int, channels []int, block adm.ProcessedBlock) bool {
	if s.limit >= 0 && len(s.sent) >= s.limit {
		return false
	}
	s.sent = append(s.sent, sentBlock{group, index, append([]int(nil), channels...), block})
	return true
}

// constSamples returns a per-channel constant inside bounds
type constSamples struct {
	mu    sync.Mutex
	reads int
}

func channelValue(ch int) float32 {
	return float32(ch+1) * 0.1
}

func (c *constSamples) ReadChannel(channel int, startFrame int, bounds adm.ChannelBounds, dst []float32) int {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	for i := range dst {
		f := startFrame + i
		if f >= 0 && bounds.Contains(f) {
			dst[i] = channelValue(channel)
		} else {
			dst[i] = 0
		}
	}
	return len(dst)
}
