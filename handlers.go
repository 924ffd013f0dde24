package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/kwv/planbind/floorplan"
	"github.com/labstack/echo/v4"
	"github.com/paulmach/orb/geojson"
)

// maxUploadBytes bounds update bodies and SVG uploads
const maxUploadBytes = 20 << 20

// server holds the HTTP handlers' dependencies
type server struct {
	visual *floorplan.Visual
	hub    *renderHub
	svgURL string
	fetch  func(ctx context.Context, url string) (string, error)
}

type elementEvent struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Index int    `json:"index"`
}

type polygonEvent struct {
	Key string `json:"key"`
}

type viewportEvent struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"deltaY"`
}

type eventResponse struct {
	Handled  bool                `json:"handled"`
	Version  uint64              `json:"version"`
	Viewport *floorplan.Viewport `json:"viewport,omitempty"`
}

type fetchRequest struct {
	URL string `json:"url"`
}

// newHTTPServer creates the echo instance with every route registered
func newHTTPServer(visual *floorplan.Visual, svgURL string) *echo.Echo {
	s := &server{
		visual: visual,
		svgURL: svgURL,
		fetch: func(ctx context.Context, u string) (string, error) {
			return floorplan.FetchMarkup(ctx, u)
		},
	}
	s.hub = newRenderHub(visual.Version)
	visual.OnRender(s.hub.broadcast)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler
	s.register(e)
	return e
}

func (s *server) register(e *echo.Echo) {
	e.GET("/health", s.handleHealth)
	e.GET("/", s.handleIndex)
	e.GET("/render.svg", s.handleRender)
	e.GET("/overlay.svg", s.handleOverlaySVG)
	e.GET("/overlay.png", s.handleOverlayPNG)
	e.GET("/overlay.geojson", s.handleOverlayGeoJSON)
	e.GET("/ws", s.hub.handle)

	api := e.Group("/api")
	api.GET("/viewmodel", s.handleViewModel)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
	api.POST("/update", s.handleUpdate)
	api.POST("/svg", s.handleSVGUpload)
	api.POST("/svg/fetch", s.handleSVGFetch)
	api.POST("/events/element", s.handleElementEvent)
	api.POST("/events/polygon", s.handlePolygonEvent)
	api.POST("/events/viewport", s.handleViewportEvent)
}

func (s *server) handleHealth(c echo.Context) error {
	last := s.visual.LastResult()
	status := struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
		Version   string    `json:"version"`
		Render    uint64    `json:"render"`
		Markup    string    `json:"markup"`
		Viewers   int       `json:"viewers"`
	}{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
		Render:    s.visual.Version(),
		Markup:    last.Status,
		Viewers:   s.hub.clientCount(),
	}
	return c.JSON(http.StatusOK, status)
}

func (s *server) handleIndex(c echo.Context) error {
	return c.HTML(http.StatusOK, viewerPage)
}

func (s *server) handleRender(c echo.Context) error {
	var buf bytes.Buffer
	if err := s.visual.WriteSVG(&buf); err != nil {
		return NewInternalError("Failed to serialise surface", err)
	}
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, "image/svg+xml", buf.Bytes())
}

func (s *server) overlayRenderer() (*floorplan.OverlayRenderer, error) {
	vm := s.visual.ViewModel()
	if len(vm.Polygons) == 0 {
		return nil, NewServiceUnavailableError("No polygons available")
	}
	return floorplan.NewOverlayRenderer(vm.Polygons, s.visual.Settings()), nil
}

func (s *server) handleOverlaySVG(c echo.Context) error {
	r, err := s.overlayRenderer()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		return NewInternalError("Failed to render overlay", err)
	}
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, "image/svg+xml", buf.Bytes())
}

func (s *server) handleOverlayPNG(c echo.Context) error {
	r, err := s.overlayRenderer()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		return NewInternalError("Failed to render overlay", err)
	}
	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (s *server) handleOverlayGeoJSON(c echo.Context) error {
	vm := s.visual.ViewModel()
	fc := floorplan.OverlayFeatureCollection(vm.Polygons, s.visual.Settings().DefaultColor())
	data, err := fc.MarshalJSON()
	if err != nil {
		return NewInternalError("Failed to encode GeoJSON", err)
	}
	return c.Blob(http.StatusOK, "application/geo+json", data)
}

func (s *server) handleViewModel(c echo.Context) error {
	return c.JSON(http.StatusOK, s.visual.ViewModel())
}

func (s *server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.visual.Settings())
}

// handlePutSettings merges the body over the current settings
func (s *server) handlePutSettings(c echo.Context) error {
	settings := s.visual.Settings()
	if err := json.NewDecoder(io.LimitReader(c.Request().Body, maxUploadBytes)).Decode(&settings); err != nil {
		return NewBadRequestError("Invalid settings", err)
	}
	return c.JSON(http.StatusOK, s.visual.UpdateSettings(settings))
}

func (s *server) handleUpdate(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxUploadBytes))
	if err != nil {
		return NewBadRequestError("Failed to read body", err)
	}
	payload, err := floorplan.DecodeUpdatePayload(body)
	if err != nil {
		return NewBadRequestError("Invalid update payload", err)
	}
	return c.JSON(http.StatusOK, s.visual.Apply(payload))
}

func (s *server) handleSVGUpload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("No file provided", err)
	}
	src, err := file.Open()
	if err != nil {
		return NewInternalError("Failed to open uploaded file", err)
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return NewInternalError("Failed to read uploaded file", err)
	}

	res, err := s.visual.ImportFile(file.Filename, data)
	if err != nil {
		if errors.Is(err, floorplan.ErrUnsupportedFile) {
			return NewUnsupportedMediaError("Only .svg files can be imported", err)
		}
		return NewInternalError("Import failed", err)
	}
	log.Printf("[HTTP] imported %s (%d bytes, %s)", file.Filename, len(data), res.Status)
	return c.JSON(http.StatusCreated, res)
}

func (s *server) handleSVGFetch(c echo.Context) error {
	var req fetchRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("Invalid request", err)
	}
	target := strings.TrimSpace(req.URL)
	if target == "" {
		target = s.svgURL
	}
	if target == "" {
		return NewBadRequestError("url is required", nil)
	}

	text, err := s.fetch(c.Request().Context(), target)
	if err != nil {
		return NewBadGatewayError("Failed to fetch floor plan", err)
	}

	res, err := s.visual.ImportFile(svgNameFromURL(target), []byte(text))
	if err != nil {
		return NewInternalError("Import failed", err)
	}
	return c.JSON(http.StatusOK, res)
}

// svgNameFromURL picks a file name for a fetched floor plan
func svgNameFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if base := path.Base(u.Path); strings.EqualFold(path.Ext(base), ".svg") {
			return base
		}
	}
	return "remote.svg"
}

func (s *server) handleElementEvent(c echo.Context) error {
	var ev elementEvent
	if err := c.Bind(&ev); err != nil {
		return NewBadRequestError("Invalid event", err)
	}

	var handled bool
	switch ev.Type {
	case "enter":
		handled = s.visual.PointerEnter(ev.Label, ev.Index)
	case "leave":
		handled = s.visual.PointerLeave(ev.Label, ev.Index)
	case "click":
		handled = s.visual.Click(ev.Label, ev.Index)
	default:
		return NewBadRequestError("Unknown element event: "+ev.Type, nil)
	}
	return c.JSON(http.StatusOK, eventResponse{Handled: handled, Version: s.visual.Version()})
}

func (s *server) handlePolygonEvent(c echo.Context) error {
	var ev polygonEvent
	if err := c.Bind(&ev); err != nil {
		return NewBadRequestError("Invalid event", err)
	}
	handled := s.visual.ClickPolygon(ev.Key)
	return c.JSON(http.StatusOK, eventResponse{Handled: handled, Version: s.visual.Version()})
}

func (s *server) handleViewportEvent(c echo.Context) error {
	var ev viewportEvent
	if err := c.Bind(&ev); err != nil {
		return NewBadRequestError("Invalid event", err)
	}

	var handled bool
	switch ev.Type {
	case "wheel":
		handled = s.visual.Wheel(ev.DeltaY)
	case "down":
		handled = s.visual.PointerDown(ev.X, ev.Y)
	case "move":
		handled = s.visual.PointerMove(ev.X, ev.Y)
	case "up":
		handled = s.visual.PointerUp()
	case "leave":
		handled = s.visual.PointerLeaveSurface()
	case "dblclick":
		handled = s.visual.DoubleClick()
	default:
		return NewBadRequestError("Unknown viewport event: "+ev.Type, nil)
	}
	vp := s.visual.Viewport()
	return c.JSON(http.StatusOK, eventResponse{Handled: handled, Version: s.visual.Version(), Viewport: &vp})
}

// writeGeoJSON writes a feature collection to w
func writeGeoJSON(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
