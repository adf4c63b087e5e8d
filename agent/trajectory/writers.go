package trajectory

import (
	"fmt"
	"slices"

	"github.com/BaSui01/captain/types"
)

// screenshotLocked 返回 idx 处的截图事件，调用方必须持有写锁.
func (t *Trajectory) screenshotLocked(idx int) (*types.ScreenshotEvent, error) {
	if idx < 0 || idx >= len(t.events) {
		return nil, types.NewError(types.ErrInvariantViolation,
			fmt.Sprintf("event index %d out of range [0, %d)", idx, len(t.events)))
	}
	ev := t.events[idx]
	if !ev.IsScreenshot() {
		return nil, types.NewError(types.ErrInvariantViolation,
			fmt.Sprintf("event %d is a %s, not a screenshot", idx, ev.Kind))
	}
	return ev.Screenshot, nil
}

// MarkRedundant 把 idx 处的截图标记为冗余。标记不可撤销，重复调用无副作用.
func (t *Trajectory) MarkRedundant(idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	se, err := t.screenshotLocked(idx)
	if err != nil {
		return err
	}
	se.Redundant = true
	return nil
}

// SetDescription 写入描述，只能写一次.
func (t *Trajectory) SetDescription(idx int, description string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	se, err := t.screenshotLocked(idx)
	if err != nil {
		return err
	}
	if se.HasDescription() {
		return types.NewError(types.ErrInvariantViolation, fmt.Sprintf("event %d already has a description", idx))
	}
	se.Description = description
	if se.Enrichment == types.EnrichmentPending {
		se.Enrichment = types.EnrichmentDescribed
	}
	return nil
}

// SetEmbedding 写入向量，只能写一次.
func (t *Trajectory) SetEmbedding(idx int, embedding []float32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	se, err := t.screenshotLocked(idx)
	if err != nil {
		return err
	}
	if se.HasEmbedding() {
		return types.NewError(types.ErrInvariantViolation, fmt.Sprintf("event %d already has an embedding", idx))
	}
	if len(embedding) == 0 {
		return types.NewError(types.ErrInvariantViolation, fmt.Sprintf("empty embedding for event %d", idx))
	}
	se.Embedding = slices.Clone(embedding)
	se.Enrichment = types.EnrichmentEmbedded
	return nil
}

// SetEnrichmentState 更新增强状态.
func (t *Trajectory) SetEnrichmentState(idx int, state types.EnrichmentState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	se, err := t.screenshotLocked(idx)
	if err != nil {
		return err
	}
	se.Enrichment = state
	return nil
}
