package screen

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/captain/internal/pool"
	"github.com/BaSui01/captain/types"
)

// ErrNoDisplay 表示没有可用的画面.
var ErrNoDisplay = errors.New("no display frame available")

// Capturer 截图来源.
type Capturer interface {
	Capture(ctx context.Context) (*types.Screenshot, error)
}

// CapturerFunc 把函数适配为 Capturer.
type CapturerFunc func(ctx context.Context) (*types.Screenshot, error)

// Capture 调用 f.
func (f CapturerFunc) Capture(ctx context.Context) (*types.Screenshot, error) { return f(ctx) }

// frame 目录中的一个图像文件.
type frame struct {
	path    string
	modTime time.Time
}

// DirectoryCapturer 从目录读取最新的帧.
type DirectoryCapturer struct {
	dir    string
	logger *zap.Logger
}

// NewDirectoryCapturer 创建目录截图来源，目录必须存在.
func NewDirectoryCapturer(dir string, logger *zap.Logger) (*DirectoryCapturer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, types.NewError(types.ErrResourceUnavailable, "frame directory is not accessible").WithCause(err)
	}
	if !info.IsDir() {
		return nil, types.NewError(types.ErrResourceUnavailable, dir+" is not a directory")
	}
	return &DirectoryCapturer{
		dir:    dir,
		logger: logger.With(zap.String("component", "screen_capturer")),
	}, nil
}

// Dir 返回帧目录.
func (c *DirectoryCapturer) Dir() string { return c.dir }

// Capture 读取目录中修改时间最新的帧.
func (c *DirectoryCapturer) Capture(ctx context.Context) (*types.Screenshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, ok, err := c.newest()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, noDisplay(c.dir)
	}
	return LoadFrame(f.path, f.modTime)
}

// newest 返回最新的帧，修改时间相同时取文件名较大者.
func (c *DirectoryCapturer) newest() (frame, bool, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return frame{}, false, types.NewError(types.ErrResourceUnavailable, "failed to list frame directory").WithCause(err)
	}

	var best frame
	found := false
	for _, e := range entries {
		if e.IsDir() || !IsFrameFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.Debug("skip unreadable frame", zap.String("name", e.Name()), zap.Error(err))
			}
			continue
		}
		f := frame{path: filepath.Join(c.dir, e.Name()), modTime: info.ModTime()}
		if !found || f.modTime.After(best.modTime) || (f.modTime.Equal(best.modTime) && f.path > best.path) {
			best, found = f, true
		}
	}
	return best, found, nil
}

// IsFrameFile 报告文件名是否为支持的图像格式.
func IsFrameFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// LoadFrame 读取并解码一帧，ts 为截图时间.
func LoadFrame(path string, ts time.Time) (*types.Screenshot, error) {
	buf := pool.FrameBuffers.Get()
	defer pool.FrameBuffers.Put(buf)

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, noDisplay(path)
		}
		return nil, types.NewError(types.ErrResourceUnavailable, "failed to open frame").WithCause(err)
	}
	defer file.Close()

	if _, err := buf.ReadFrom(file); err != nil {
		return nil, types.NewError(types.ErrResourceUnavailable, "failed to read frame").WithCause(err)
	}
	img, _, err := image.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, types.NewError(types.ErrResourceUnavailable, "failed to decode frame "+filepath.Base(path)).WithCause(err)
	}
	return types.NewScreenshot(img, ts)
}

func noDisplay(where string) error {
	return types.NewError(types.ErrResourceUnavailable, "no frame in "+where).WithCause(ErrNoDisplay)
}
