// Copyright 2025 The Archimedes Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package binding

import (
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archimedes.dev/archimedes/pipeline"
)

// queryView builds a view whose query string carries the given values.
func queryView(values url.Values) *pipeline.RequestView {
	return pipeline.TestView(http.MethodGet, "/convert?"+values.Encode())
}

func TestConvertBoundedIntegers(t *testing.T) {
	t.Parallel()

	type params struct {
		Small int8    `query:"small"`
		Count uint16  `query:"count"`
		Ratio float64 `query:"ratio"`
	}

	got, err := Query[params](queryView(url.Values{
		"small": {"127"},
		"count": {"65535"},
		"ratio": {"3.25"},
	}))
	require.NoError(t, err)
	assert.Equal(t, int8(127), got.Small)
	assert.Equal(t, uint16(65535), got.Count)
	assert.Equal(t, 3.25, got.Ratio)

	_, err = Query[params](queryView(url.Values{"small": {"128"}}))
	assert.Error(t, err, "value over the field's bit width fails")

	_, err = Query[params](queryView(url.Values{"count": {"-1"}}))
	assert.Error(t, err, "negative value fails an unsigned field")
}

func TestConvertBoolSpellings(t *testing.T) {
	t.Parallel()

	type params struct {
		Flag bool `query:"flag"`
	}

	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"true", "true", true},
		{"one", "1", true},
		{"yes", "yes", true},
		{"on", "on", true},
		{"t", "t", true},
		{"y", "Y", true},
		{"false", "false", false},
		{"zero", "0", false},
		{"no", "no", false},
		{"off", "off", false},
		{"empty", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Query[params](queryView(url.Values{"flag": {tc.raw}}))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Flag)
		})
	}
}

func TestConvertInvalidBoolFails(t *testing.T) {
	t.Parallel()

	type params struct {
		Flag bool `query:"flag"`
	}

	_, err := Query[params](queryView(url.Values{"flag": {"definitely"}}))
	assert.ErrorIs(t, err, ErrInvalidBoolean)
}

func TestConvertTimeLayouts(t *testing.T) {
	t.Parallel()

	type params struct {
		At time.Time `query:"at"`
	}

	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", "2026-08-24T10:30:00Z", time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)},
		{"date only", "2026-08-24", time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		{"datetime", "2026-08-24 10:30:05", time.Date(2026, 8, 24, 10, 30, 5, 0, time.UTC)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Query[params](queryView(url.Values{"at": {tc.raw}}))
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got.At), "got %v", got.At)
		})
	}
}

func TestConvertCustomTimeLayout(t *testing.T) {
	t.Parallel()

	type params struct {
		At time.Time `query:"at"`
	}

	view := queryView(url.Values{"at": {"24.08.2026"}})

	_, err := Query[params](view)
	assert.ErrorIs(t, err, ErrUnparseableTime)

	got, err := Query[params](view, WithTimeLayouts("02.01.2006"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), got.At)
}

func TestConvertDuration(t *testing.T) {
	t.Parallel()

	type params struct {
		Timeout time.Duration `query:"timeout"`
	}

	got, err := Query[params](queryView(url.Values{"timeout": {"1h30m"}}))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, got.Timeout)

	_, err = Query[params](queryView(url.Values{"timeout": {"soon"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestConvertURLAndIP(t *testing.T) {
	t.Parallel()

	type params struct {
		Callback url.URL `query:"callback"`
		Peer     net.IP  `query:"peer"`
	}

	got, err := Query[params](queryView(url.Values{
		"callback": {"https://example.com/hook?id=1"},
		"peer":     {"10.1.2.3"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Callback.Host)
	assert.Equal(t, "/hook", got.Callback.Path)
	assert.True(t, got.Peer.Equal(net.IPv4(10, 1, 2, 3)))

	_, err = Query[params](queryView(url.Values{"peer": {"not-an-ip"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid IP address")
}

// ticketID exercises the encoding.TextUnmarshaler conversion path.
type ticketID string

func (id *ticketID) UnmarshalText(text []byte) error {
	if len(text) != 8 {
		return stderrors.New("ticket id must be 8 characters")
	}
	*id = ticketID(strings.ToUpper(string(text)))

	return nil
}

func TestConvertTextUnmarshaler(t *testing.T) {
	t.Parallel()

	type params struct {
		Ticket ticketID `query:"ticket"`
	}

	got, err := Query[params](queryView(url.Values{"ticket": {"ab12cd34"}}))
	require.NoError(t, err)
	assert.Equal(t, ticketID("AB12CD34"), got.Ticket)

	_, err = Query[params](queryView(url.Values{"ticket": {"short"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8 characters")
}

func TestConvertPointerFields(t *testing.T) {
	t.Parallel()

	type params struct {
		Limit *int `query:"limit"`
	}

	got, err := Query[params](queryView(url.Values{"limit": {"5"}}))
	require.NoError(t, err)
	require.NotNil(t, got.Limit)
	assert.Equal(t, 5, *got.Limit)

	got, err = Query[params](queryView(url.Values{"limit": {""}}))
	require.NoError(t, err)
	assert.Nil(t, got.Limit, "present but empty leaves the pointer nil")
}

func TestConvertUnsupportedKindFails(t *testing.T) {
	t.Parallel()

	type params struct {
		C complex128 `query:"c"`
	}

	_, err := Query[params](queryView(url.Values{"c": {"1+2i"}}))
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestConvertSliceElementFailure(t *testing.T) {
	t.Parallel()

	type params struct {
		IDs []int `query:"ids"`
	}

	_, err := Query[params](queryView(url.Values{"ids": {"1", "x", "3"}}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
}

func TestConvertSliceLimit(t *testing.T) {
	t.Parallel()

	type params struct {
		IDs []int `query:"ids"`
	}

	view := queryView(url.Values{"ids": {"1", "2", "3"}})

	_, err := Query[params](view, WithMaxSliceLen(2))
	assert.ErrorIs(t, err, ErrSliceLimit)

	got, err := Query[params](view, WithMaxSliceLen(3))
	require.NoError(t, err)
	assert.Len(t, got.IDs, 3)
}

func TestConvertMapEntryLimit(t *testing.T) {
	t.Parallel()

	type params struct {
		Labels map[string]string `query:"labels"`
	}

	view := queryView(url.Values{"labels.a": {"1"}, "labels.b": {"2"}})

	_, err := Query[params](view, WithMaxMapEntries(1))
	assert.ErrorIs(t, err, ErrMapLimit)
}

func TestConvertMapRequiresStringKeys(t *testing.T) {
	t.Parallel()

	type params struct {
		ByID map[int]string `query:"byId"`
	}

	_, err := Query[params](queryView(url.Values{"byId.1": {"x"}}))
	assert.ErrorIs(t, err, ErrMapKeyNotString)
}

func TestConvertMapTypedValues(t *testing.T) {
	t.Parallel()

	type params struct {
		Weights map[string]float64 `query:"weights"`
	}

	got, err := Query[params](queryView(url.Values{
		"weights.cpu": {"0.5"},
		"weights.mem": {"1.5"},
	}))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"cpu": 0.5, "mem": 1.5}, got.Weights)
}

func TestConvertNestingDepthLimit(t *testing.T) {
	t.Parallel()

	type inner struct {
		City string `query:"city"`
	}
	type params struct {
		Address inner `query:"address"`
	}

	view := queryView(url.Values{"address.city": {"Berlin"}})

	_, err := Query[params](view, WithMaxDepth(0))
	assert.ErrorIs(t, err, ErrMaxDepth)

	got, err := Query[params](view)
	require.NoError(t, err)
	assert.Equal(t, "Berlin", got.Address.City)
}

func TestCustomConverterWinsOverBuiltin(t *testing.T) {
	t.Parallel()

	type params struct {
		Window time.Duration `query:"window"`
	}

	view := queryView(url.Values{"window": {"short"}})

	_, err := Query[params](view)
	require.Error(t, err, "no built-in parse for the alias")

	got, err := Query[params](view, WithConverter(DurationConverter(map[string]time.Duration{
		"short": 5 * time.Second,
	})))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, got.Window)
}

type ticketStatus string

func TestEnumConverter(t *testing.T) {
	t.Parallel()

	conv := EnumConverter[ticketStatus]("open", "closed", "blocked")

	got, err := conv("OPEN")
	require.NoError(t, err)
	assert.Equal(t, ticketStatus("open"), got, "matches case-insensitively, returns the listed spelling")

	_, err = conv("reopened")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be one of")
}

func TestEnumConverterWiredThroughOption(t *testing.T) {
	t.Parallel()

	type params struct {
		Status ticketStatus `query:"status"`
	}

	view := queryView(url.Values{"status": {"Closed"}})

	got, err := Query[params](view, WithConverter(EnumConverter[ticketStatus]("open", "closed")))
	require.NoError(t, err)
	assert.Equal(t, ticketStatus("closed"), got.Status)

	_, err = Query[params](view)
	require.NoError(t, err, "without the converter the raw string binds as-is")
}

func TestDurationConverter(t *testing.T) {
	t.Parallel()

	conv := DurationConverter(map[string]time.Duration{"long": 5 * time.Minute})

	got, err := conv("long")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, got)

	got, err = conv("45s")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, got)

	_, err = conv("whenever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
