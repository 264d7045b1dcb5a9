package domain

// Episode 是某一季剧集列表中的一项。
//
// Number 按抽取顺序从 1 开始编号，不读取页面上印刷的集号
// （页面编号经常不连续/缺失）。Season 原样回显调用方传入的季号。
type Episode struct {
	Name    string `json:"name"`
	Number  int    `json:"number"`
	AirDate string `json:"air_date"`
	Rating  string `json:"rating"`
	Summary string `json:"summary"`
	Season  int    `json:"season"`
}
