package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/listenupapp/listenup-mirrors/internal/domain"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E7D32"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9A825"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C62828")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func renderStatus(s domain.SyncStatus) string {
	switch s {
	case domain.SyncStatusSynced:
		return okStyle.Render(string(s))
	case domain.SyncStatusError:
		return errorStyle.Render(string(s))
	default:
		return pendingStyle.Render(string(s))
	}
}
