package util

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// MaxReferenceImages 单次请求允许的参考图数量上限
const MaxReferenceImages = 5

// ValidateReferenceImages 校验用户上传的参考图 URL 列表。
// 只接受 http/https 的绝对地址和 data URI。
func ValidateReferenceImages(urls []string) error {
	if len(urls) > MaxReferenceImages {
		return fmt.Errorf("参考图数量超过上限 %d", MaxReferenceImages)
	}
	for _, raw := range urls {
		if strings.HasPrefix(raw, "data:image/") {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("无效的参考图地址: %s", raw)
		}
	}
	return nil
}

// DownloadImage 把生成结果落盘到 dir 下，返回 /pic 静态路由下的相对路径。
// 服务商返回的图片 URL 通常有时效，落盘的本地副本长期可用。
func DownloadImage(dir, imageURL string, taskID uint64, pageIndex, version int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("创建目录失败: %v", err)
	}
	filename := fmt.Sprintf("%d_%d_v%d.jpg", taskID, pageIndex, version)

	resp, err := http.Get(imageURL)
	if err != nil {
		return "", fmt.Errorf("下载请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("下载失败，状态码: %d", resp.StatusCode)
	}

	out, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("创建文件失败: %v", err)
	}
	defer out.Close()

	if _, err = io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("写入文件失败: %v", err)
	}
	return "/pic/" + filename, nil
}
