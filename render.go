package pubrender

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

const serverErrorPage = `<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8" />
		<title>Server error</title>
		<meta name="robots" content="noindex" />
	</head>
	<body><h1>Server error</h1><p>This page could not be rendered.</p></body>
</html>`

// ServerError is the page served when a render fails. No partial document
// is ever sent instead.
func ServerError() templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, serverErrorPage)
		return err
	})
}
