package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tellmeastory/zine-server/internal/domain"
	"github.com/tellmeastory/zine-server/internal/service"
)

func (s *Server) registerNotificationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "notificationReceived",
		Method:      http.MethodPost,
		Path:        "/api/v1/notifications/received",
		Summary:     "Report received notification",
		Description: "Records that a new-issue notification for a followed zine reached the device",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleNotificationReceived)

	huma.Register(s.api, huma.Operation{
		OperationID: "registerDevice",
		Method:      http.MethodPost,
		Path:        "/api/v1/devices",
		Summary:     "Register device",
		Description: "Stores a push token and subscribes it to the topic of every followed zine",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleRegisterDevice)

	huma.Register(s.api, huma.Operation{
		OperationID: "listDevices",
		Method:      http.MethodGet,
		Path:        "/api/v1/devices",
		Summary:     "List devices",
		Description: "Lists the caller's registered devices",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleListDevices)

	huma.Register(s.api, huma.Operation{
		OperationID: "unregisterDevice",
		Method:      http.MethodDelete,
		Path:        "/api/v1/devices",
		Summary:     "Unregister device",
		Description: "Drops a push token and unsubscribes it from every followed zine",
		Tags:        []string{"Notifications"},
		Security:    bearerSecurity,
	}, s.handleUnregisterDevice)
}

// === DTOs ===

// NotificationReceivedRequest reports a delivered notification.
type NotificationReceivedRequest struct {
	ZineID     string     `json:"zine_id" minLength:"1" doc:"Zine the notification was about"`
	ReceivedAt *time.Time `json:"received_at,omitempty" doc:"When the device received it. Defaults to now."`
}

// NotificationReceivedInput wraps the request for Huma.
type NotificationReceivedInput struct {
	Body NotificationReceivedRequest
}

// RegisterDeviceRequest is a push token reported by the app.
type RegisterDeviceRequest struct {
	Token    string `json:"token" minLength:"1" maxLength:"4096" doc:"Push token"`
	Platform string `json:"platform,omitempty" enum:"ios,android,web" doc:"Device platform"`
}

// RegisterDeviceInput wraps the request for Huma.
type RegisterDeviceInput struct {
	Body RegisterDeviceRequest
}

// UnregisterDeviceInput names the token to drop.
type UnregisterDeviceInput struct {
	Token string `query:"token" required:"true" minLength:"1" doc:"Push token"`
}

// DeviceOutput wraps a device for Huma.
type DeviceOutput struct {
	Body domain.Device
}

// DeviceListResponse lists devices.
type DeviceListResponse struct {
	Devices []domain.Device `json:"devices" doc:"Registered devices"`
}

// DeviceListOutput wraps the list for Huma.
type DeviceListOutput struct {
	Body DeviceListResponse
}

// === Handlers ===

func (s *Server) handleNotificationReceived(ctx context.Context, input *NotificationReceivedInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	var at time.Time
	if input.Body.ReceivedAt != nil {
		at = *input.Body.ReceivedAt
	}
	if err := s.services.Notifications.Received(ctx, userID, input.Body.ZineID, at); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Recorded"}}, nil
}

func (s *Server) handleRegisterDevice(ctx context.Context, input *RegisterDeviceInput) (*DeviceOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	device, err := s.services.Notifications.RegisterDevice(ctx, userID, service.RegisterDeviceRequest{
		Token:    input.Body.Token,
		Platform: input.Body.Platform,
	})
	if err != nil {
		return nil, err
	}
	return &DeviceOutput{Body: device}, nil
}

func (s *Server) handleListDevices(ctx context.Context, _ *struct{}) (*DeviceListOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	devices, err := s.services.Notifications.Devices(ctx, userID)
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []domain.Device{}
	}
	return &DeviceListOutput{Body: DeviceListResponse{Devices: devices}}, nil
}

func (s *Server) handleUnregisterDevice(ctx context.Context, input *UnregisterDeviceInput) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Notifications.UnregisterDevice(ctx, userID, input.Token); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Device unregistered"}}, nil
}
