package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const weatherTimeout = 20 * time.Second

// Weather 查询城市的当前天气（wttr.in，无需密钥）。
type Weather struct {
	opts options
}

// NewWeather 创建天气工具。
func NewWeather(opts ...Option) *Weather {
	return &Weather{opts: newOptions("https://wttr.in", opts)}
}

func (t *Weather) Name() string { return "get_weather" }

func (t *Weather) Description() string {
	return "Get current weather information for a city."
}

func (t *Weather) Parameters() map[string]any {
	return objectSchema([]string{"city"}, map[string]any{
		"city": stringProp(`City name (e.g., "London", "New York", "Tokyo")`),
	})
}

func (t *Weather) Call(ctx context.Context, input string) (string, error) {
	city := stringArg(input, "city")
	if city == "" {
		return "Could not fetch weather: city is required", nil
	}

	endpoint := fmt.Sprintf("%s/%s?format=j1", t.opts.baseURL, url.PathEscape(city))
	data, err := t.opts.fetchJSON(ctx, weatherTimeout, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Sprintf("Could not fetch weather: %v", err), nil
	}

	current := gjson.GetBytes(data, "current_condition.0")
	if !current.Exists() {
		return "Could not fetch weather: missing current_condition in response", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Weather in %s:\n", city)
	fmt.Fprintf(&sb, "• Temperature: %s°C / %s°F\n", current.Get("temp_C").String(), current.Get("temp_F").String())
	fmt.Fprintf(&sb, "• Condition: %s\n", current.Get("weatherDesc.0.value").String())
	fmt.Fprintf(&sb, "• Humidity: %s%%\n", current.Get("humidity").String())
	fmt.Fprintf(&sb, "• Wind: %s km/h\n", current.Get("windspeedKmph").String())
	fmt.Fprintf(&sb, "• Feels like: %s°C / %s°F", current.Get("FeelsLikeC").String(), current.Get("FeelsLikeF").String())
	return sb.String(), nil
}
