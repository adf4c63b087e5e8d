// =============================================================================
// 📦 测试数据工厂 - 截图
// =============================================================================
// 生成确定性的截图，同一个 seed 总是得到相同的像素
// =============================================================================
package fixtures

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/BaSui01/captain/types"
)

// BaseTime 所有截图时间戳的起点，seed n 对应 BaseTime + n 秒
var BaseTime = time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

// DefaultSize 默认截图边长（像素）
const DefaultSize = 8

// Image 返回 size×size 的确定性图像
func Image(seed, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 0xff
			continue
		}
		img.Pix[i] = uint8(seed*37 + i*7)
	}
	return img
}

// Screenshot 返回 seed 对应的截图
func Screenshot(t testing.TB, seed int) *types.Screenshot {
	t.Helper()
	return ScreenshotFrom(t, Image(seed, DefaultSize), seed)
}

// ScreenshotFrom 把 img 编码成截图，时间戳由 seed 决定
func ScreenshotFrom(t testing.TB, img image.Image, seed int) *types.Screenshot {
	t.Helper()
	s, err := types.NewScreenshot(img, BaseTime.Add(time.Duration(seed)*time.Second))
	if err != nil {
		t.Fatalf("build screenshot: %v", err)
	}
	return s
}

// NearDuplicate 返回与 seed 截图仅有一个像素不同的截图，时间戳为 seed+offset
func NearDuplicate(t testing.TB, seed, offset int) *types.Screenshot {
	t.Helper()
	img := Image(seed, DefaultSize)
	c := img.RGBAAt(0, 0)
	img.SetRGBA(0, 0, color.RGBA{R: c.R + 1, G: c.G, B: c.B, A: c.A})
	return ScreenshotFrom(t, img, seed+offset)
}

// Duplicate 返回与 seed 截图像素完全相同、时间戳为 seed+offset 的截图
func Duplicate(t testing.TB, seed, offset int) *types.Screenshot {
	t.Helper()
	return ScreenshotFrom(t, Image(seed, DefaultSize), seed+offset)
}
