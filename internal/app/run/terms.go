package run

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// ReadTerms 按行读取搜索词。
//
// 规则：
// - 行内连续空白折叠为一个空格，首尾空白去掉
// - 空行与以 # 开头的行被忽略
//
// 重复的词原样保留；去重在 Execute 中进行，这样阶段事件能统计重复数。
func ReadTerms(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var lines []string
	for sc.Scan() {
		line := strings.Join(strings.Fields(sc.Text()), " ")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// LoadTerms 读取文件形式的搜索词列表；path 为 "-" 时读 stdin。
func LoadTerms(path string) ([]string, error) {
	if path == "-" {
		return ReadTerms(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTerms(f)
}

// uniqueTerms 折叠空白后去重（大小写敏感），保留第一次出现的顺序。
func uniqueTerms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
