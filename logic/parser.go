package logic

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"xhs-creator/models"
)

// 大纲文本按优先级尝试三种切分策略，第一个能切出页面的策略胜出：
//  1. 显式 <page> 标记
//  2. --- 分隔线
//  3. 旧版【第N页 - 类型】标题
var (
	pageTagRe      = regexp.MustCompile(`(?s)<page>(.*?)</page>`)
	separatorRe    = regexp.MustCompile(`(?m)^\s*---+\s*$`)
	legacyHeaderRe = regexp.MustCompile(`【第(\d+)页\s*[-—–]?\s*([^】]*)】`)
	typeMarkerRe   = regexp.MustCompile(`^\s*[\[【]([^\]】]+)[\]】]`)
)

// ParseOutline 把模型返回的大纲文本解析为有序页面列表，
// 解析不出任何页面时返回空切片
func ParseOutline(text string) []models.Page {
	for _, strategy := range []func(string) []models.Page{
		parsePageTags,
		parseSeparators,
		parseLegacyHeaders,
	} {
		if pages := strategy(text); len(pages) > 0 {
			sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
			return pages
		}
	}
	return nil
}

func parsePageTags(text string) []models.Page {
	matches := pageTagRe.FindAllStringSubmatch(text, -1)
	pages := make([]models.Page, 0, len(matches))
	for _, m := range matches {
		if p, ok := buildPage(len(pages), m[1]); ok {
			pages = append(pages, p)
		}
	}
	return pages
}

func parseSeparators(text string) []models.Page {
	segments := separatorRe.Split(text, -1)
	if len(segments) < 2 {
		return nil
	}
	pages := make([]models.Page, 0, len(segments))
	for _, seg := range segments {
		if p, ok := buildPage(len(pages), seg); ok {
			pages = append(pages, p)
		}
	}
	return pages
}

func parseLegacyHeaders(text string) []models.Page {
	headers := legacyHeaderRe.FindAllStringSubmatchIndex(text, -1)
	if len(headers) == 0 {
		return nil
	}
	pages := make([]models.Page, 0, len(headers))
	for i, h := range headers {
		// h: [start end numStart numEnd labelStart labelEnd]
		num, err := strconv.Atoi(text[h[2]:h[3]])
		if err != nil || num < 1 {
			continue
		}
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		content := strings.TrimSpace(text[h[1]:end])
		if content == "" {
			continue
		}
		pageType := mapPageType(text[h[4]:h[5]])
		if pageType == "" {
			pageType = models.PageTypeContent
		}
		pages = append(pages, models.Page{
			Index:   num - 1,
			Type:    pageType,
			Content: content,
		})
	}
	return pages
}

// buildPage 清洗单页内容并推断页面类型，空白页丢弃
func buildPage(index int, raw string) (models.Page, bool) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return models.Page{}, false
	}
	pageType := models.PageTypeContent
	if m := typeMarkerRe.FindStringSubmatch(content); m != nil {
		if t := mapPageType(m[1]); t != "" {
			pageType = t
			content = strings.TrimSpace(content[len(m[0]):])
		}
	}
	if content == "" {
		return models.Page{}, false
	}
	return models.Page{Index: index, Type: pageType, Content: content}, true
}

// mapPageType 中文标签映射到页面类型，识别不了返回空串
func mapPageType(label string) string {
	switch strings.TrimSpace(label) {
	case "封面", "封面页", "cover":
		return models.PageTypeCover
	case "总结", "总结页", "summary":
		return models.PageTypeSummary
	case "内容", "内容页", "content":
		return models.PageTypeContent
	default:
		return ""
	}
}
