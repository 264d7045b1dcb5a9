// Package sanitize 收敛所有自由文本的转义规则。
//
// 这是文本层面的规范化，不是安全边界：下游若写入真实存储，应使用参数化写入，
// 而不是依赖这里的转义。
package sanitize

import "strings"

// Escape 把单引号转义为 \'（SQL 字面量风格）。
//
// 不幂等：对已转义的文本再次调用会保留已有的反斜杠并再转义一次引号，
// 例如 Escape(Escape("O'Brien")) == `O\\'Brien`。
func Escape(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// StripQuotes 直接删除单引号。剧集名使用这一较弱的规则。
func StripQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "")
}

// Unescape 撤销一次 Escape，仅供展示型输出（NFO 等）使用。
func Unescape(s string) string {
	return strings.ReplaceAll(s, `\'`, "'")
}
