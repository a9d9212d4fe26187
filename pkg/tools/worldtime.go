package tools

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata" // 容器镜像里常常没有 zoneinfo
)

// WorldTime 返回指定 IANA 时区的当前时间，本地计算，无网络调用。
type WorldTime struct {
	now func() time.Time
}

// NewWorldTime 创建世界时钟工具。
func NewWorldTime() *WorldTime {
	return &WorldTime{now: time.Now}
}

// NewWorldTimeWithClock 使用固定时钟创建工具，便于测试。
func NewWorldTimeWithClock(now func() time.Time) *WorldTime {
	return &WorldTime{now: now}
}

func (t *WorldTime) Name() string { return "get_world_time" }

func (t *WorldTime) Description() string {
	return "Get current time in a specific timezone."
}

func (t *WorldTime) Parameters() map[string]any {
	return objectSchema([]string{"timezone"}, map[string]any{
		"timezone": stringProp(`Timezone name (e.g., "America/New_York", "Europe/London", "Asia/Tokyo")`),
	})
}

func (t *WorldTime) Call(_ context.Context, input string) (string, error) {
	tz := stringArg(input, "timezone")
	if tz == "" {
		return "Timezone lookup failed: timezone is required", nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Sprintf("Timezone lookup failed: %v", err), nil
	}

	now := t.now().In(loc)
	return fmt.Sprintf("Current time in %s:\n• Date: %s\n• Time: %s\n• 24h: %s\n• UTC Offset: %s",
		tz,
		now.Format("Monday, January 02, 2006"),
		now.Format("03:04:05 PM"),
		now.Format("15:04:05"),
		now.Format("-0700"),
	), nil
}
