package generator

import (
	"encoding/json"
	"regexp"
	"strings"
)

// chat completions 协议下模型以自由文本返回结果，
// 按优先级依次尝试下列抽取方式，命中即返回：
//  1. markdown 图片链接 ![...](url)
//  2. 裸 URL
//  3. base64 data URI
//  4. JSON 字段扫描（url / image_url / b64_json）
var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^\s)]+)\)`)
	bareURLRe       = regexp.MustCompile(`https?://[^\s"'<>\\)]+`)
	dataURIRe       = regexp.MustCompile(`data:image/[a-zA-Z+.-]+;base64,[A-Za-z0-9+/=]+`)
)

// ExtractImageURL 从模型输出中抽取图片地址
func ExtractImageURL(output string) (string, bool) {
	if m := markdownImageRe.FindStringSubmatch(output); m != nil {
		return m[1], true
	}
	if m := bareURLRe.FindString(output); m != "" {
		return strings.TrimRight(m, ".,;"), true
	}
	if m := dataURIRe.FindString(output); m != "" {
		return m, true
	}
	if u, ok := scanJSONFields(output); ok {
		return u, true
	}
	return "", false
}

// scanJSONFields 尝试把输出当 JSON 解析并扫描常见字段
func scanJSONFields(output string) (string, bool) {
	start := strings.IndexByte(output, '{')
	end := strings.LastIndexByte(output, '}')
	if start < 0 || end <= start {
		return "", false
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(output[start:end+1]), &doc); err != nil {
		return "", false
	}
	return findImageField(doc)
}

func findImageField(v interface{}) (string, bool) {
	switch val := v.(type) {
	case map[string]interface{}:
		for _, key := range []string{"url", "image_url", "b64_json"} {
			if s, ok := val[key].(string); ok && s != "" {
				if key == "b64_json" {
					return "data:image/png;base64," + s, true
				}
				return s, true
			}
		}
		for _, child := range val {
			if s, ok := findImageField(child); ok {
				return s, true
			}
		}
	case []interface{}:
		for _, child := range val {
			if s, ok := findImageField(child); ok {
				return s, true
			}
		}
	}
	return "", false
}
