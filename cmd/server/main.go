package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kataras/iris/v12"

	"cine-reader/internal/config"
	"cine-reader/internal/logging"
	"cine-reader/internal/server"
)

func main() {
	port := flag.Int("port", config.Port, "Server port")
	host := flag.String("host", config.Host, "Listen address")
	file := flag.String("file", "", "CINE file to open (optional, can be set via POST /api/v1/config)")
	debug := flag.Bool("debug", os.Getenv("DEBUG") != "", "Enable debug logging")
	flag.Parse()

	// 设置日志级别
	if *debug {
		logging.SetDebugMode(true)
	}

	// 查找可用端口
	actualPort := findAvailablePort(*host, *port)

	fmt.Println("============================================================")
	fmt.Println("CINE 帧服务")
	fmt.Println("============================================================")
	if *file != "" {
		fmt.Printf("文件: %s\n", *file)
	}
	fmt.Printf("监听地址: http://%s:%d\n", *host, actualPort)
	fmt.Println("============================================================")

	frames, err := server.NewFrameServer(*file)
	if err != nil {
		logging.LogError("无法打开文件", "path", *file, "err", err)
		os.Exit(1)
	}
	defer frames.Close()

	// 创建 Iris 应用
	app := iris.New()
	app.Logger().SetLevel("warn")

	// CORS
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")
		if ctx.Method() == "OPTIONS" {
			ctx.StatusCode(204)
			return
		}
		ctx.Next()
	})

	server.RegisterRoutes(app, server.NewHandlers(frames))

	// 优雅关闭
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println("\n正在关闭...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Shutdown(ctx)
	}()

	fmt.Printf("\n服务器已启动: http://%s:%d\n", *host, actualPort)
	if err := app.Listen(fmt.Sprintf("%s:%d", *host, actualPort), iris.WithoutServerError(iris.ErrServerClosed)); err != nil {
		logging.LogError("服务器错误", "err", err)
	}
}

// findAvailablePort 查找可用端口，如果指定端口被占用则递增
func findAvailablePort(host string, startPort int) int {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err == nil {
			ln.Close()
			return port
		}
	}
	return startPort // 回退到原始端口
}
