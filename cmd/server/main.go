package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"

	"ontograph/internal/adapter/memstore"
	"ontograph/internal/adapter/sqlitestore"
	"ontograph/internal/config"
	"ontograph/internal/engine"
	"ontograph/internal/graph"
	"ontograph/internal/handler"
	"ontograph/internal/middleware"
	"ontograph/internal/ontology"
	"ontograph/internal/service"
	"ontograph/internal/session"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// 加载本体 Schema
	loader := ontology.NewLoader(cfg.Schema.FilePath)
	if err := loader.Load(); err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	reg := loader.Registry()
	log.Printf("Schema loaded successfully: %d classes, %d relationships, %d attributes",
		len(reg.ClassNames()), len(reg.RelationshipNames()), len(reg.AttributeNames()))

	// 解析一致性模式
	mode, err := engine.ParseMode(cfg.Schema.ConsistencyMode)
	if err != nil {
		log.Fatalf("Failed to parse consistency mode: %v", err)
	}

	// 初始化存储适配器
	var store session.Adapter
	switch cfg.Store.Driver {
	case "memory":
		store = memstore.New()
	case "sqlite":
		sqlStore, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			log.Fatalf("Failed to open sqlite store: %v", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	default:
		log.Fatalf("Unknown store driver: %s", cfg.Store.Driver)
	}
	log.Printf("Store driver: %s, consistency mode: %s", cfg.Store.Driver, mode)

	// 初始化图与会话
	g := graph.New(loader)
	eng := engine.New(loader, mode)
	sess := session.New(g, eng, store)

	// 初始化服务
	schemaService := service.NewSchemaService(loader)
	nodeService := service.NewNodeService(sess, loader)
	edgeService := service.NewEdgeService(sess, loader)
	syncService := service.NewSyncService(sess)

	// 初始化处理器
	schemaHandler := handler.NewSchemaHandler(schemaService)
	nodeHandler := handler.NewNodeHandler(nodeService)
	edgeHandler := handler.NewEdgeHandler(edgeService)
	syncHandler := handler.NewSyncHandler(syncService)

	// 创建路由
	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	// API 路由
	api := router.Group("/api/v1")
	{
		// Schema 查询 API
		schemaAPI := api.Group("/schema")
		{
			schemaAPI.GET("/classes", schemaHandler.ListClasses)
			schemaAPI.GET("/classes/:name", schemaHandler.GetClass)
			schemaAPI.GET("/classes/:name/superclasses", schemaHandler.GetSuperclasses)
			schemaAPI.GET("/classes/:name/subclasses", schemaHandler.GetSubclasses)
			schemaAPI.GET("/relationships", schemaHandler.ListRelationships)
			schemaAPI.GET("/relationships/:name", schemaHandler.GetRelationship)
			schemaAPI.GET("/attributes", schemaHandler.ListAttributes)
			schemaAPI.POST("/reload", schemaHandler.Reload)
		}

		// 节点 CRUD API
		nodesAPI := api.Group("/nodes")
		{
			nodesAPI.POST("", nodeHandler.CreateNode)
			nodesAPI.GET("", nodeHandler.ListNodes)
			nodesAPI.GET("/:id", nodeHandler.GetNode)
			nodesAPI.PUT("/:id", nodeHandler.UpdateNode)
			nodesAPI.DELETE("/:id", nodeHandler.DeleteNode)
			nodesAPI.GET("/:id/is-a/:class", nodeHandler.CheckIsA)

			// 边操作 API
			nodesAPI.POST("/:id/edges", edgeHandler.AddEdge)
			nodesAPI.DELETE("/:id/edges", edgeHandler.RemoveEdge)
			nodesAPI.GET("/:id/neighbors/:relationship", edgeHandler.GetNeighbors)
		}

		// 会话同步 API
		sessionAPI := api.Group("/session")
		{
			sessionAPI.POST("/commit", syncHandler.Commit)
			sessionAPI.POST("/rollback", syncHandler.Rollback)
			sessionAPI.GET("/pending", syncHandler.Pending)
			sessionAPI.POST("/hydrate", syncHandler.Hydrate)
		}
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// 启动服务器
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Printf("API available at http://localhost%s/api/v1", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
