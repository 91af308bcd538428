package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submissions 按函数与终态统计的提交次数
var Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vault",
	Name:      "submissions_total",
	Help:      "Contract invocations submitted, by function and terminal status.",
}, []string{"function", "status"})

// FallbackDepth 提交管道命中的回退层级
// prepared / spliced / raw
var FallbackDepth = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vault",
	Name:      "submission_fallback_total",
	Help:      "Submissions by the deepest fallback strategy used.",
}, []string{"strategy"})

// PollTimeouts 轮询超时次数
var PollTimeouts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vault",
	Name:      "poll_timeouts_total",
	Help:      "Transactions still pending after the bounded status poll.",
})

// Registrations 注册尝试次数
var Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vault",
	Name:      "registrations_total",
	Help:      "Signer registration attempts by result.",
}, []string{"result"})

// ChallengeMismatches 提前拦截的 challenge 不匹配次数
var ChallengeMismatches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vault",
	Name:      "challenge_mismatches_total",
	Help:      "Assertions rejected before any network round trip.",
})
