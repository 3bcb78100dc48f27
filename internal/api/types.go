package api

import (
	"github.com/Soar-Robotics/hashfarm/internal/game"
	"github.com/Soar-Robotics/hashfarm/internal/miner"
)

// For device status reports
type DeviceStatus string

const (
	StatusUp       DeviceStatus = "Up"
	StatusDegraded DeviceStatus = "Degraded"
	StatusDown     DeviceStatus = "Down"
)

type DeviceIssue string

const (
	IssueOverheated DeviceIssue = "Overheated"
	IssueWorn       DeviceIssue = "Worn"
	IssueBroken     DeviceIssue = "Broken"
)

// degradedBelow is the durability under which a device reports Degraded.
const degradedBelow = 30

// DeviceReport is the health summary of one device.
type DeviceReport struct {
	InstanceID string        `json:"instance_id"`
	Status     DeviceStatus  `json:"status"`
	Issues     []DeviceIssue `json:"issues"`
}

func deviceReport(d miner.Device) DeviceReport {
	r := DeviceReport{InstanceID: d.InstanceID, Status: StatusUp, Issues: []DeviceIssue{}}
	if d.Overheated {
		r.Issues = append(r.Issues, IssueOverheated)
	}
	switch {
	case d.Durability <= 0:
		r.Issues = append(r.Issues, IssueBroken)
	case d.Durability < degradedBelow:
		r.Issues = append(r.Issues, IssueWorn)
	}
	switch {
	case !d.Producing():
		r.Status = StatusDown
	case len(r.Issues) > 0:
		r.Status = StatusDegraded
	}
	return r
}

// PlayerResponse is a player snapshot plus per-device health.
type PlayerResponse struct {
	*game.View
	DeviceStatus []DeviceReport `json:"device_status"`
}

func playerResponse(v *game.View) PlayerResponse {
	reports := make([]DeviceReport, 0, len(v.Devices))
	for _, d := range v.Devices {
		reports = append(reports, deviceReport(d.Device))
	}
	return PlayerResponse{View: v, DeviceStatus: reports}
}

type BuyDeviceRequest struct {
	TemplateID int  `json:"template_id" binding:"required,min=1"`
	Slot       *int `json:"slot" binding:"required,min=0"`
}

// EarningsResponse reports lifetime earnings and what was claimed in a period.
type EarningsResponse struct {
	Wallet             string  `json:"wallet"`
	TotalEarned        float64 `json:"total_earned"`
	Unclaimed          float64 `json:"unclaimed"`
	EarningsOverPeriod float64 `json:"earnings_over_period"`
	Period             string  `json:"period"`
}

// CatalogResponse is the static game data.
type CatalogResponse struct {
	Templates    []miner.Template   `json:"templates"`
	Rooms        []miner.Room       `json:"rooms"`
	MetaUpgrades []game.MetaUpgrade `json:"meta_upgrades"`
	Achievements []game.Achievement `json:"achievements"`
}

// StreamMessage is one frame on the state websocket.
type StreamMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
