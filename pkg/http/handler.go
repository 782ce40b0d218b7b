package http

import "github.com/labstack/echo/v4"

// Handler registers its routes on the server's Echo instance. NewServer
// registers handlers in the order given, before the metrics route.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
