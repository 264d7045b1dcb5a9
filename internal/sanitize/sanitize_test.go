package sanitize

import "testing"

func TestEscape(t *testing.T) {
	if got := Escape("O'Brien"); got != `O\'Brien` {
		t.Fatalf("Escape 结果不符合预期：%q", got)
	}
	if got := Escape("no quotes"); got != "no quotes" {
		t.Fatalf("无引号文本不应变化：%q", got)
	}
}

// Escape 不是幂等的：二次转义必须保留第一次插入的反斜杠。
func TestEscape_NotIdempotent(t *testing.T) {
	once := Escape("O'Brien")
	twice := Escape(once)
	if twice == once {
		t.Fatalf("二次 Escape 不应与一次相同：%q", twice)
	}
	if twice != `O\\'Brien` {
		t.Fatalf("二次 Escape 结果不符合预期：%q", twice)
	}
}

func TestStripQuotes(t *testing.T) {
	if got := StripQuotes("Ozymandias's End'"); got != "Ozymandiass End" {
		t.Fatalf("StripQuotes 结果不符合预期：%q", got)
	}
}

func TestUnescape_ReversesOneEscape(t *testing.T) {
	in := "it's Rock 'n' Roll"
	if got := Unescape(Escape(in)); got != in {
		t.Fatalf("Unescape(Escape(x)) != x：%q", got)
	}
}
