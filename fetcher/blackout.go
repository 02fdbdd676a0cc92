package fetcher

import "time"

// sydney 上游计费方所在的固定民用时区。
var sydney = mustLoadSydney()

func mustLoadSydney() *time.Location {
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		// tz 数据缺失属于部署环境问题，启动即失败
		panic(err)
	}
	return loc
}

// Blackout 上游黑障窗口判定：悉尼本地 10:00（含）至 16:00（不含）上游按策略停服。
// 说明：比较永远发生在该时区的墙钟时间上，而非固定 UTC 偏移，夏令时切换不会
// 挪动本地窗口边界。当前仅作为咨询信号，取数层不据此拦截真实请求。
func Blackout(now time.Time) bool {
	t := now.In(sydney)
	return t.Hour() >= 10 && t.Hour() < 16
}
