package domain

// Torrent 是种子索引结果页的一行，字段全部保留页面原文。
// 它与 MediaRecord 之间没有任何规范化的关联键。
type Torrent struct {
	Title      string `json:"title"`
	MagnetLink string `json:"magnet_link"`
	Seeders    string `json:"seeders"`
	Leechers   string `json:"leechers"`
}
