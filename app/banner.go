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

package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/common-nighthawk/go-figure"
	"golang.org/x/term"
)

// colorWriter wraps w so ANSI colors are downsampled to the terminal's
// capabilities. Production output is stripped of colors entirely.
func (a *App) colorWriter(w io.Writer) *colorprofile.Writer {
	cpw := colorprofile.NewWriter(w, os.Environ())
	if a.cfg.IsProduction() {
		cpw.Profile = colorprofile.NoTTY
	}

	return cpw
}

// bannerSuppressed reports whether the startup banner is skipped: disabled
// explicitly, or running in production without WithBanner.
func (a *App) bannerSuppressed() bool {
	return !a.bannerEnabled || (a.cfg.IsProduction() && !a.bannerForced)
}

// printStartupBanner renders the startup banner: ASCII-art service name,
// the service/contract/observability summary, and outside production the
// operations table with registration state.
func (a *App) printStartupBanner(addr, protocol string) {
	if a.bannerSuppressed() {
		return
	}

	a.writeStartupBanner(a.colorWriter(os.Stdout), addr, protocol)
}

func (a *App) writeStartupBanner(w io.Writer, addr, protocol string) {
	art := figure.NewFigure(a.cfg.ServiceName, "", false)
	artLines := art.Slicify()

	gradient := []string{"12", "14", "10", "11"}
	if a.cfg.IsProduction() {
		gradient = []string{"10", "11"}
	}

	var styledArt strings.Builder
	for _, line := range artLines {
		if strings.TrimSpace(line) == "" {
			styledArt.WriteString("\n")
			continue
		}
		for i, char := range line {
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(gradient[i%len(gradient)])).
				Bold(true)
			styledArt.WriteString(style.Render(string(char)))
		}
		styledArt.WriteString("\n")
	}

	categoryStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Width(14).PaddingLeft(2)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("15")).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	providerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	scheme := "http://"
	if protocol == "HTTPS" || protocol == "mTLS" {
		scheme = "https://"
	}
	displayAddr := scheme + normalizeAddr(addr)

	var out strings.Builder

	out.WriteString(categoryStyle.Render("Service") + "\n")
	out.WriteString(labelStyle.Render("Version:") + "  " + valueStyle.Foreground(lipgloss.Color("14")).Render(a.cfg.ServiceVersion) + "\n")
	out.WriteString(labelStyle.Render("Environment:") + "  " + valueStyle.Foreground(lipgloss.Color("11")).Render(a.cfg.Environment) + "\n")
	out.WriteString(labelStyle.Render("Address:") + "  " + valueStyle.Foreground(lipgloss.Color("10")).Render(displayAddr) + "\n")

	out.WriteString("\n" + categoryStyle.Render("Contract") + "\n")
	out.WriteString(labelStyle.Render("Version:") + "  " + valueStyle.Render(a.artifact.Version) + "\n")
	out.WriteString(labelStyle.Render("Operations:") + "  " + valueStyle.Render(fmt.Sprintf("%d", len(a.artifact.Operations))) + "\n")
	if sum := a.artifact.Checksum.Value; len(sum) >= 12 {
		out.WriteString(labelStyle.Render("Checksum:") + "  " + dimStyle.Render(sum[:12]) + "\n")
	}

	out.WriteString("\n" + categoryStyle.Render("Observability") + "\n")
	if a.metrics != nil {
		metricsAddr := "http://" + normalizeAddr(a.metrics.ServerAddress()) + a.metrics.Path()
		out.WriteString(labelStyle.Render("Metrics:") + "  " +
			valueStyle.Foreground(lipgloss.Color("13")).Render(metricsAddr) + "  " +
			providerStyle.Render(fmt.Sprintf("[%s]", a.metrics.Provider())) + "\n")
	} else {
		out.WriteString(labelStyle.Render("Metrics:") + "  " + dimStyle.Render("Disabled") + "\n")
	}
	if a.tracing != nil && a.tracing.IsEnabled() {
		out.WriteString(labelStyle.Render("Tracing:") + "  " +
			valueStyle.Foreground(lipgloss.Color("12")).Render("Enabled") + "  " +
			providerStyle.Render(fmt.Sprintf("[%s]", a.tracing.Provider())) + "\n")
	} else {
		out.WriteString(labelStyle.Render("Tracing:") + "  " + dimStyle.Render("Disabled") + "\n")
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, styledArt.String())
	fmt.Fprintln(w)
	fmt.Fprint(w, out.String())

	if !a.cfg.IsProduction() && len(a.artifact.Operations) > 0 {
		fmt.Fprintln(w)
		a.renderOperationsTable(w, 80)
	}

	fmt.Fprintln(w)
}

// normalizeAddr expands a bare ":8080" to "0.0.0.0:8080" for display.
func normalizeAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}

	return addr
}

// renderOperationsTable prints the contract operations with their
// registration state, color-coded by method outside production.
func (a *App) renderOperationsTable(w io.Writer, width int) {
	ops := a.artifact.Operations
	if len(ops) == 0 {
		return
	}

	methodStyles := map[string]lipgloss.Style{
		"GET":    lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		"POST":   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		"PUT":    lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		"DELETE": lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		"PATCH":  lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
	}
	useColors := !a.cfg.IsProduction()

	rows := make([][]string, 0, len(ops))
	maxMethod, maxPath, maxOp := len("Method"), len("Path"), len("Operation")
	for i := range ops {
		op := &ops[i]

		method := op.Method
		if useColors {
			if style, ok := methodStyles[method]; ok {
				method = style.Render(method)
			}
		}

		registered := "-"
		if a.pipe.Registered(op.ID) {
			registered = "yes"
		}

		maxMethod = max(maxMethod, len(op.Method))
		maxPath = max(maxPath, len(op.Path))
		maxOp = max(maxOp, len(op.ID))

		rows = append(rows, []string{method, op.Path, op.ID, registered})
	}

	// Border and padding overhead around the four columns.
	minWidth := 2 + 3 + 8 + maxMethod + maxPath + maxOp + len("Handler")

	terminalWidth := width
	if file, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(file.Fd())); err == nil && tw > 0 {
			terminalWidth = tw
		}
	}

	tableWidth := max(minWidth, width)
	if terminalWidth > 0 {
		tableWidth = min(tableWidth, terminalWidth)
	}
	tableWidth = max(60, tableWidth)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			style := lipgloss.NewStyle().Align(lipgloss.Left).Padding(0, 1)
			if row == 0 && useColors {
				style = style.Bold(true).Foreground(lipgloss.Color("230"))
			}

			return style
		}).
		Headers("Method", "Path", "Operation", "Handler").
		Rows(rows...).
		Width(tableWidth)

	fmt.Fprintln(w, t.Render())
}
