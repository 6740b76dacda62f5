package models

const (
	DefaultCollection      = "juridico_collection"
	DefaultEmbeddingModel  = "amazon.titan-embed-text-v2:0"
	DefaultTextModel       = "amazon.titan-text-express-v1"
	DefaultPDFFolder       = "dataset/juridicos/"
	DefaultEmbeddingsKey   = "embeddings/chroma_db"
	SnapshotFile           = "index.chromem"
	ManifestFile           = "manifest.json"
	DefaultSmokeTestQuery  = "O que é um recurso especial?"
	TelegramTestUpdateID   = 123456789
	TelegramMaxMessageSize = 4096

	MetadataSource = "source"
	MetadataPage   = "page"
	MetadataChunk  = "chunk"
	MetadataSeq    = "seq"
)

var (
	// PromptTemplate is the default text/template used by the prompt composer.
	// It receives .Query and .Passages.
	PromptTemplate = `Com base neste contexto jurídico, responda de forma direta e objetiva.
Utilize apenas as informações do contexto. Se o contexto não contiver informações suficientes, explique isso brevemente.

PERGUNTA: {{.Query}}

CONTEXTO:
{{range $i, $p := .Passages}}{{if $i}}
---
{{end}}{{$p.Content}}{{end}}

RESPOSTA:`

	// AnswerPrefixes are stripped from the start of generated text.
	AnswerPrefixes = []string{"RESPOSTA:", "Resposta:"}
)

// user facing replies
const (
	MsgWelcome = "👋 Bem-vindo ao BOT AWS lambda RAG\n\n" +
		"Estou pronto para responder suas perguntas sobre documentos. " +
		"Basta enviar sua pergunta e eu usarei tecnologia RAG " +
		"(Retrieval-Augmented Generation) para encontrar a melhor resposta.\n\n" +
		"Comandos disponíveis:\n" +
		"• /start - Mostra esta mensagem de boas-vindas\n" +
		"• /ajuda - Exibe informações de ajuda\n\n" +
		"Digite sua pergunta a qualquer momento!"
	MsgHelp = "🔍 Ajuda do BOT AWS lambda RAG\n\n" +
		"Este bot usa RAG (Retrieval-Augmented Generation) para responder suas perguntas " +
		"com base nos documentos armazenados.\n\n" +
		"Como usar:\n" +
		"• Faça uma pergunta sobre o conteúdo dos documentos\n" +
		"• O bot irá procurar nos documentos e gerar uma resposta relevante\n\n" +
		"Comandos:\n" +
		"• /start - Reinicia o bot\n" +
		"• /ajuda - Mostra esta mensagem de ajuda"
	MsgUnknownCommand  = "Comando não reconhecido. Use /ajuda para ver os comandos disponíveis."
	MsgTextOnly        = "Atualmente, só consigo processar mensagens de texto. Por favor, envie sua pergunta como texto."
	MsgProcessing      = "🔍 Estou processando sua pergunta. Aguarde alguns instantes..."
	MsgIndexNotReady   = "😔 Os embeddings dos documentos ainda não foram inicializados.\n\nPor favor, aguarde enquanto o administrador do sistema executa a função `initialize-embeddings` para gerar os embeddings necessários."
	MsgNothingRelevant = "😔 Não encontrei informações relevantes para sua pergunta na base de conhecimento disponível."
	MsgTimeout         = "⏱️ A consulta demorou muito tempo para ser processada. Por favor, tente uma pergunta mais simples ou tente novamente mais tarde."
	MsgGenerationBusy  = "😔 O serviço de geração de respostas está indisponível no momento. Por favor, tente novamente mais tarde."
	MsgInternalError   = "😔 Desculpe, ocorreu um erro ao processar sua mensagem. Por favor, tente novamente mais tarde."
	MsgEmptyQuestion   = "Por favor, envie uma pergunta."
)
