package i18n

import (
	"reflect"
	"sync"
)

// Language type
type Language string

const (
	LangEN Language = "en"
	LangZH Language = "zh"
)

// Messages holds all translatable strings
type Messages struct {
	// System
	Starting           string
	ConfigLoaded       string
	ConfigLoadFailed   string
	UsingDBPath        string
	DBInitFailed       string
	DBMigrationsFailed string
	ServerListening    string
	APIServerError     string
	ShuttingDown       string
	WatchlistLoaded    string
	WatchlistFailed    string
	MockFeedStarted    string
	BridgeTarget       string

	// Historical
	HistoricalConnectFailed string
	HistoricalFetchStarted  string
	HistoricalRequestFailed string
	HistoricalWaitTimedOut  string
	HistoricalFetchDone     string

	// Live
	LiveConnectFailed string
	LiveReady         string
	LiveSubscribed    string
	LiveSubscribeFail string
	LiveStopping      string

	// Analytics
	VolSummary         string
	StockSummary       string
	SummaryUnavailable string
	MixedSummary       string
	SizingSummary      string
}

var (
	currentLang Language = LangEN
	mu          sync.RWMutex
	messages    *Messages
)

// English messages
var messagesEN = Messages{
	Starting:           "Starting vol-core...",
	ConfigLoaded:       "Config loaded (mode: %s, broker %s:%d)",
	ConfigLoadFailed:   "Failed to load config: %v",
	UsingDBPath:        "Using database: %s",
	DBInitFailed:       "Failed to open database: %v",
	DBMigrationsFailed: "Failed to apply migrations: %v",
	ServerListening:    "Status API listening on :%s",
	APIServerError:     "Status API error: %v",
	ShuttingDown:       "Shutting down...",
	WatchlistLoaded:    "Watchlist loaded: %d tickers, %d monitors",
	WatchlistFailed:    "Failed to load watchlist: %v",
	MockFeedStarted:    "Using synthetic broker feed",
	BridgeTarget:       "Broker bridge: %s",

	HistoricalConnectFailed: "Historical gateway connect failed: %v",
	HistoricalFetchStarted:  "Fetching %d kinds for %d tickers (session %s)",
	HistoricalRequestFailed: "Some historical requests failed: %v",
	HistoricalWaitTimedOut:  "Historical requests still pending after the wait ceiling: %v",
	HistoricalFetchDone:     "Historical fetch complete: %d requests in %s",

	LiveConnectFailed: "Live gateway start failed: %v",
	LiveReady:         "Live gateway ready",
	LiveSubscribed:    "Streaming %s (reqId %d)",
	LiveSubscribeFail: "Subscribe %s failed: %v",
	LiveStopping:      "Cancelling %d subscriptions",

	VolSummary:         "%s %s: now %.2f, min %.2f, max %.2f, avg %.2f, rank %d (pct %d, weighted %d)",
	StockSummary:       "%s: HV %.2f, %.2f%% from MA",
	SummaryUnavailable: "%s %s: no summary (%v)",
	MixedSummary:       "%s: IV/HV avg %.2f, IV avg/HV avg %.2f, IV above later HV %.0f%% of %d days (avg diff %.2f)",
	SizingSummary:      "%s: vol ratio %.2f, %.0f shares directional, %.1f contracts neutral",
}

// Chinese messages
var messagesZH = Messages{
	Starting:           "啟動 vol-core...",
	ConfigLoaded:       "設定已載入（模式：%s，券商 %s:%d）",
	ConfigLoadFailed:   "載入設定失敗：%v",
	UsingDBPath:        "使用資料庫：%s",
	DBInitFailed:       "開啟資料庫失敗：%v",
	DBMigrationsFailed: "套用資料庫遷移失敗：%v",
	ServerListening:    "狀態 API 監聽於 :%s",
	APIServerError:     "狀態 API 錯誤：%v",
	ShuttingDown:       "正在關閉...",
	WatchlistLoaded:    "觀察清單已載入：%d 檔標的，%d 個監控",
	WatchlistFailed:    "載入觀察清單失敗：%v",
	MockFeedStarted:    "使用模擬券商資料",
	BridgeTarget:       "券商橋接：%s",

	HistoricalConnectFailed: "歷史資料閘道連線失敗：%v",
	HistoricalFetchStarted:  "抓取 %d 種資料，共 %d 檔標的（工作階段 %s）",
	HistoricalRequestFailed: "部分歷史資料請求失敗：%v",
	HistoricalWaitTimedOut:  "等待上限已到，仍有歷史資料請求未完成：%v",
	HistoricalFetchDone:     "歷史資料抓取完成：%d 個請求，耗時 %s",

	LiveConnectFailed: "即時閘道啟動失敗：%v",
	LiveReady:         "即時閘道已就緒",
	LiveSubscribed:    "開始串流 %s（reqId %d）",
	LiveSubscribeFail: "訂閱 %s 失敗：%v",
	LiveStopping:      "正在取消 %d 個訂閱",

	VolSummary:         "%s %s：目前 %.2f，最低 %.2f，最高 %.2f，平均 %.2f，排名 %d（百分位 %d，加權 %d）",
	StockSummary:       "%s：HV %.2f，距均線 %.2f%%",
	SummaryUnavailable: "%s %s：無法計算摘要（%v）",
	MixedSummary:       "%s：IV/HV 平均 %.2f，IV 平均/HV 平均 %.2f，IV 高於後續 HV 比例 %.0f%%（共 %d 天，平均差 %.2f）",
	SizingSummary:      "%s：波動比 %.2f，方向性 %.0f 股，中性 %.1f 口",
}

func init() {
	messages = &messagesEN
}

// SetLanguage sets the current language
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()

	currentLang = lang
	switch lang {
	case LangZH:
		messages = &messagesZH
	default:
		messages = &messagesEN
	}
}

// GetLanguage returns the current language
func GetLanguage() Language {
	mu.RLock()
	defer mu.RUnlock()
	return currentLang
}

// M returns the current messages
func M() *Messages {
	mu.RLock()
	defer mu.RUnlock()
	return messages
}

// Get returns specific message by key dynamically using reflection
func Get(key string) string {
	msg := M()
	v := reflect.ValueOf(msg).Elem()
	f := v.FieldByName(key)
	if f.IsValid() && f.Kind() == reflect.String {
		return f.String()
	}
	return key
}
