package screen

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/BaSui01/captain/types"
)

// --- 帧监听器选项 ---

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithDebounceDelay 设置写入完成的等待时间，录屏工具通常分块写文件
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithPolling 强制使用轮询，interval 为轮询间隔
func WithPolling(interval time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.forcePolling = true
		w.pollInterval = interval
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// --- 帧监听器实现 ---

// Watcher 在目录出现新帧时推送截图.
type Watcher struct {
	capturer      *DirectoryCapturer
	debounceDelay time.Duration
	pollInterval  time.Duration
	forcePolling  bool
	logger        *zap.Logger

	last frame // 最后一次推送的帧，只在监听 goroutine 中访问
}

// NewWatcher 创建帧监听器.
func NewWatcher(dir string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		debounceDelay: 100 * time.Millisecond,
		pollInterval:  time.Second,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "screen_watcher"))

	c, err := NewDirectoryCapturer(dir, w.logger)
	if err != nil {
		return nil, err
	}
	w.capturer = c
	return w, nil
}

// Watch 开始监听，返回的通道在 ctx 结束时关闭.
func (w *Watcher) Watch(ctx context.Context) (<-chan *types.Screenshot, error) {
	out := make(chan *types.Screenshot, 8)

	if !w.forcePolling {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fw.Add(w.capturer.Dir()); err == nil {
				w.logger.Info("watching frame directory", zap.String("dir", w.capturer.Dir()))
				go w.notifyLoop(ctx, fw, out)
				return out, nil
			}
			_ = fw.Close()
		}
		w.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
	}

	if w.pollInterval <= 0 {
		close(out)
		return nil, fmt.Errorf("invalid poll interval %v", w.pollInterval)
	}
	go w.pollLoop(ctx, out)
	return out, nil
}

// notifyLoop 收集 fsnotify 事件，防抖后按修改时间顺序推送.
func (w *Watcher) notifyLoop(ctx context.Context, fw *fsnotify.Watcher, out chan<- *types.Screenshot) {
	defer close(out)
	defer fw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounceDelay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !IsFrameFile(event.Name) || !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounceDelay)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("frame watcher error", zap.Error(err))
		case <-timer.C:
			if !w.flush(ctx, pending, out) {
				return
			}
			clear(pending)
		}
	}
}

// flush 推送 pending 中比上一帧更新的文件，ctx 结束时返回 false.
func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}, out chan<- *types.Screenshot) bool {
	frames := make([]frame, 0, len(pending))
	for path := range pending {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		frames = append(frames, frame{path: path, modTime: info.ModTime()})
	}
	slices.SortFunc(frames, func(a, b frame) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})
	for _, f := range frames {
		if !w.emit(ctx, f, out) {
			return false
		}
	}
	return true
}

// pollLoop 定期检查最新帧（fsnotify 不可用时的后备）
func (w *Watcher) pollLoop(ctx context.Context, out chan<- *types.Screenshot) {
	defer close(out)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f, ok, err := w.capturer.newest()
			if err != nil {
				w.logger.Warn("failed to poll frame directory", zap.Error(err))
				continue
			}
			if ok && !w.emit(ctx, f, out) {
				return
			}
		}
	}
}

// emit 解码并推送帧；与上一帧相同或更旧时跳过.
func (w *Watcher) emit(ctx context.Context, f frame, out chan<- *types.Screenshot) bool {
	if w.last.path != "" && ((f.path == w.last.path && f.modTime.Equal(w.last.modTime)) || f.modTime.Before(w.last.modTime)) {
		return true
	}
	shot, err := LoadFrame(f.path, f.modTime)
	if err != nil {
		w.logger.Warn("failed to load frame", zap.String("path", f.path), zap.Error(err))
		return true
	}
	w.last = f

	select {
	case out <- shot:
		return true
	case <-ctx.Done():
		return false
	}
}
