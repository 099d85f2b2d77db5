package server

import (
	"net/http"
	"time"

	"hive2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type readingResponse struct {
	DeviceID          string   `json:"device_id"`
	Status            string   `json:"status"`
	CurrentTemp       float64  `json:"current_temperature"`
	TargetTemp        float64  `json:"target_temperature"`
	Heating           bool     `json:"heating"`
	Override          bool     `json:"override"`
	OverrideReadOnly  bool     `json:"override_read_only"`
	OverrideRemaining int64    `json:"override_remaining_minutes"`
	BatteryLevel      *float64 `json:"battery_level,omitempty"`
	HotWaterOn        *bool    `json:"hot_water_on,omitempty"`
}

type statusResponse struct {
	Valid     bool              `json:"valid"`
	FetchedAt time.Time         `json:"fetched_at"`
	Readings  []readingResponse `json:"readings"`
}

type thermostatResponse struct {
	UIID       string `json:"ui_id"`
	Name       string `json:"name"`
	HeatingID  string `json:"heating_id,omitempty"`
	HotWaterID string `json:"hot_water_id,omitempty"`
}

type valveResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type devicesResponse struct {
	Thermostat *thermostatResponse `json:"thermostat,omitempty"`
	Valves     []valveResponse     `json:"valves"`
}

type setTargetRequest struct {
	Target float64 `json:"target"`
}

type setBoostRequest struct {
	On      bool `json:"on"`
	Minutes int  `json:"minutes"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.GET("/devices", s.DevicesHandler)
	e.PUT("/devices/:id/target", s.SetTargetHandler)
	e.PUT("/devices/:id/boost", s.SetBoostHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	force := c.QueryParam("refresh") == "true"
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetStatusRequest{Force: force}, s.statusWait).Result()
	if err != nil {
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetStatusResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}

	body := statusResponse{
		Valid:     response.Snapshot.IsValid,
		FetchedAt: response.Snapshot.FetchedAt,
		Readings:  []readingResponse{},
	}
	for _, reading := range response.Snapshot.Readings {
		body.Readings = append(body.Readings, readingResponse{
			DeviceID:          reading.DeviceID,
			Status:            reading.Status,
			CurrentTemp:       reading.Current,
			TargetTemp:        reading.Target,
			Heating:           reading.Heating,
			Override:          reading.Override,
			OverrideReadOnly:  reading.OverrideReadOnly,
			OverrideRemaining: reading.OverrideRemaining,
			BatteryLevel:      reading.BatteryLevel,
			HotWaterOn:        reading.HotWaterOn,
		})
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) DevicesHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetDevicesRequest{}, s.statusWait).Result()
	if err != nil {
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetDevicesResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: response.GetResponseError().Error()})
	}

	body := devicesResponse{Valves: []valveResponse{}}
	if response.Devices.Thermostat != nil {
		body.Thermostat = &thermostatResponse{
			UIID:       response.Devices.Thermostat.UIID,
			Name:       response.Devices.Thermostat.Name,
			HeatingID:  response.Devices.Thermostat.HeatingID,
			HotWaterID: response.Devices.Thermostat.HotWaterID,
		}
	}
	for _, valve := range response.Devices.Valves {
		body.Valves = append(body.Valves, valveResponse{ID: valve.ID, Name: valve.Name})
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) SetTargetHandler(c echo.Context) error {
	var req setTargetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	msg := domain.SetTargetTemperatureRequest{
		NodeID: c.Param("id"),
		Value:  req.Target,
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, 30*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.SetTargetTemperatureResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) SetBoostHandler(c echo.Context) error {
	var req setBoostRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	msg := domain.SetBoostRequest{
		NodeID:          c.Param("id"),
		On:              req.On,
		DurationMinutes: req.Minutes,
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, 30*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusGatewayTimeout, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.SetBoostResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusBadGateway, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.NoContent(http.StatusNoContent)
}
