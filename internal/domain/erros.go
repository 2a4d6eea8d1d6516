package domain

import "errors"

// Erros de negócio da reconciliação de assinaturas. Os handlers traduzem
// cada um para o status HTTP correspondente; ninguém inspeciona strings.
var (
	// ErrUsuarioNaoResolvido: o evento de cobrança não pôde ser mapeado a um
	// usuário por nenhum meio (metadata ou referência de cliente). Exige
	// investigação manual — nunca é descartado em silêncio.
	ErrUsuarioNaoResolvido = errors.New("não foi possível resolver o usuário do evento")

	// ErrEventoDuplicado: mesmo raw_event_id já aplicado para este usuário.
	// Não é falha — a segunda entrega é um no-op reconhecido com sucesso.
	ErrEventoDuplicado = errors.New("evento já processado anteriormente")

	// ErrConflitoDeVersao: a escrita condicional falhou porque outra
	// reconciliação venceu a corrida. Retryable: releia o estado e reavalie.
	ErrConflitoDeVersao = errors.New("conflito de versão na escrita da assinatura")

	// ErrReconciliacaoFalhou: esgotadas as tentativas de retry. Terminal para
	// esta entrega — propaga 5xx para o provedor reentregar o webhook.
	ErrReconciliacaoFalhou = errors.New("reconciliação falhou após novas tentativas")

	// ErrEventoNaoSuportado: tipo de evento do provedor fora do conjunto
	// tratado. Reconhecido com 200 e logado.
	ErrEventoNaoSuportado = errors.New("tipo de evento não suportado")

	// ErrWebhookStripe: assinatura do payload inválida.
	ErrWebhookStripe = errors.New("erro ao verificar webhook da stripe")

	ErrTierInvalido   = errors.New("tier inválido")
	ErrStatusInvalido = errors.New("status de assinatura inválido")
)
