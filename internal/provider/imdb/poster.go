package imdb

import "strings"

const (
	posterMarker       = "@@"
	posterFullMarked   = "@@._V1_.jpg"
	posterFullUnmarked = "@._V1_.jpg"
)

// NormalizePosterURL 把模板化的海报地址改写为原尺寸版本。
//
// 从第一个 '@' 起的尾部（尺寸修饰段，如 "@._V1_UX300.jpg"）整体替换：
// 含 "@@" 时替换为 "@@._V1_.jpg"，否则为 "@._V1_.jpg"。
// 不含 '@' 的地址原样返回。
func NormalizePosterURL(src string) string {
	i := strings.IndexByte(src, '@')
	if i < 0 {
		return src
	}
	if strings.Contains(src, posterMarker) {
		return src[:i] + posterFullMarked
	}
	return src[:i] + posterFullUnmarked
}
