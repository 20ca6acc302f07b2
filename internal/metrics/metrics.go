// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordRefreshSuccess()
	RecordRefreshFailure()
	RecordScrapeResults(succeeded, failed int)
	RecordStreamsScraped(count int)
	RecordMembersPruned(count int)
	RecordGroupsDeleted(count int)
	RecordUsersDeleted(count int)
	RecordIdentityOracleFailure()
	RecordJobDuration(job string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	refreshSuccess prometheus.Counter
	refreshFail    prometheus.Counter
	scrapeSuccess  prometheus.Counter
	scrapeFail     prometheus.Counter
	streamsScraped prometheus.Counter
	membersPruned  prometheus.Counter
	groupsDeleted  prometheus.Counter
	usersDeleted   prometheus.Counter
	oracleFail     prometheus.Counter
	jobDuration    *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_token_refresh_success_total",
			Help: "トークンリフレッシュ成功の合計数",
		}),
		refreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_token_refresh_fail_total",
			Help: "トークンリフレッシュ失敗の合計数",
		}),
		scrapeSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_scrape_success_total",
			Help: "再生履歴取り込み成功の合計数",
		}),
		scrapeFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_scrape_fail_total",
			Help: "再生履歴取り込み失敗の合計数",
		}),
		streamsScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_streams_scraped_total",
			Help: "取り込んだ再生トラックの合計数",
		}),
		membersPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_members_pruned_total",
			Help: "除去した孤児メンバーの合計数",
		}),
		groupsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_groups_deleted_total",
			Help: "削除した空グループの合計数",
		}),
		usersDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_users_deleted_total",
			Help: "ID基盤不在により削除したユーザーの合計数",
		}),
		oracleFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundcircle_identity_oracle_fail_total",
			Help: "ID基盤への問い合わせ失敗の合計数",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soundcircle_job_duration_seconds",
			Help:    "バッチジョブの実行時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.refreshSuccess,
		c.refreshFail,
		c.scrapeSuccess,
		c.scrapeFail,
		c.streamsScraped,
		c.membersPruned,
		c.groupsDeleted,
		c.usersDeleted,
		c.oracleFail,
		c.jobDuration,
	)

	return c
}

// RecordRefreshSuccess はトークンリフレッシュ成功を記録する。
func (c *Collector) RecordRefreshSuccess() {
	c.refreshSuccess.Inc()
}

// RecordRefreshFailure はトークンリフレッシュ失敗を記録する。
func (c *Collector) RecordRefreshFailure() {
	c.refreshFail.Inc()
}

// RecordScrapeResults は再生履歴取り込みの成功数と失敗数を記録する。
func (c *Collector) RecordScrapeResults(succeeded, failed int) {
	c.scrapeSuccess.Add(float64(succeeded))
	c.scrapeFail.Add(float64(failed))
}

// RecordStreamsScraped は取り込んだトラック数を記録する。
func (c *Collector) RecordStreamsScraped(count int) {
	c.streamsScraped.Add(float64(count))
}

// RecordMembersPruned は除去した孤児メンバー数を記録する。
func (c *Collector) RecordMembersPruned(count int) {
	c.membersPruned.Add(float64(count))
}

// RecordGroupsDeleted は削除した空グループ数を記録する。
func (c *Collector) RecordGroupsDeleted(count int) {
	c.groupsDeleted.Add(float64(count))
}

// RecordUsersDeleted は削除したユーザー数を記録する。
func (c *Collector) RecordUsersDeleted(count int) {
	c.usersDeleted.Add(float64(count))
}

// RecordIdentityOracleFailure はID基盤への問い合わせ失敗を記録する。
func (c *Collector) RecordIdentityOracleFailure() {
	c.oracleFail.Inc()
}

// RecordJobDuration はバッチジョブの実行時間を記録する。
func (c *Collector) RecordJobDuration(job string, duration time.Duration) {
	c.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
